package position

import (
	"github.com/shopspring/decimal"

	"tmatic/internal/instrument"
)

// CalcResult carries the value components of one trade or funding payment.
// Commission is negative on maker rebate; funding is negative when paid to
// the trader.
type CalcResult struct {
	Sumreal    float64
	Commission float64
	Funding    float64
}

// Calculate computes trade value, commission and funding for a signed
// quantity. fund is 1 for trades and 0 for funding payments, matching the
// three category formulas:
//
//	inverse / future reversed:  value = qty / price
//	spot:                       value = 0, commission only
//	linear (default):           value = -qty * price
//
// When the exchange supplies a pre-computed fee (execFee) it is used verbatim
// for commission and funding. Every component is scaled by the instrument's
// contract value times multiplier.
func Calculate(ins instrument.Instrument, price, qty, rate float64, fund int, execFee *float64) CalcResult {
	if price == 0 && ins.Category.Inverse() {
		return CalcResult{}
	}
	qtyDec := decimal.NewFromFloat(qty)
	priceDec := decimal.NewFromFloat(price)
	rateDec := decimal.NewFromFloat(rate)
	fundDec := decimal.NewFromInt(int64(fund))

	var sumreal, commiss, funding decimal.Decimal
	switch {
	case ins.Category.Inverse():
		sumreal = qtyDec.Div(priceDec).Mul(fundDec)
		if execFee != nil {
			commiss = decimal.NewFromFloat(*execFee)
			funding = commiss
		} else {
			commiss = qtyDec.Abs().Div(priceDec).Mul(rateDec)
			funding = qtyDec.Div(priceDec).Mul(rateDec)
		}
	case ins.Category.Spot():
		sumreal = decimal.Zero
		if execFee != nil {
			commiss = decimal.NewFromFloat(*execFee)
		} else {
			commiss = qtyDec.Abs().Mul(priceDec).Mul(rateDec)
		}
		funding = decimal.Zero
	default:
		sumreal = qtyDec.Neg().Mul(priceDec).Mul(fundDec)
		if execFee != nil {
			commiss = decimal.NewFromFloat(*execFee)
			funding = commiss
		} else {
			commiss = qtyDec.Abs().Mul(priceDec).Mul(rateDec)
			funding = qtyDec.Mul(priceDec).Mul(rateDec)
		}
	}

	coef := decimal.NewFromFloat(ins.Coef())
	return CalcResult{
		Sumreal:    toFloat(sumreal.Mul(coef)),
		Commission: toFloat(commiss.Mul(coef)),
		Funding:    toFloat(funding.Mul(coef)),
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// RoundQty rounds a quantity to the instrument's quantity precision. Leaves
// detection relies on this being exact, not an epsilon compare.
func RoundQty(ins instrument.Instrument, qty float64) float64 {
	return toFloat(decimal.NewFromFloat(qty).Round(ins.Precision))
}
