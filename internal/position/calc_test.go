package position

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tmatic/internal/instrument"
)

func ins(cat instrument.Category) instrument.Instrument {
	return instrument.Instrument{
		Symbol:             "BTCUSDT",
		Market:             "Binance",
		Category:           cat,
		Precision:          3,
		Multiplier:         1,
		ValueOfOneContract: 1,
	}
}

func TestCalculateInverse(t *testing.T) {
	res := Calculate(ins(instrument.CategoryInverse), 20000, -10, 0, 1, nil)
	// qty / price = -10 / 20000
	assert.InDelta(t, -0.0005, res.Sumreal, 1e-12)
	assert.Zero(t, res.Commission)
	assert.Zero(t, res.Funding)
}

func TestCalculateInverseZeroPrice(t *testing.T) {
	res := Calculate(ins(instrument.CategoryInverse), 0, 10, 0.01, 1, nil)
	assert.Equal(t, CalcResult{}, res)
}

func TestCalculateSpot(t *testing.T) {
	res := Calculate(ins(instrument.CategorySpot), 100, -5, 0.001, 1, nil)
	assert.Zero(t, res.Sumreal)
	assert.InDelta(t, 0.5, res.Commission, 1e-12)
	assert.Zero(t, res.Funding)
}

func TestCalculateLinear(t *testing.T) {
	res := Calculate(ins(instrument.CategoryLinear), 100, 5, 0.001, 1, nil)
	assert.InDelta(t, -500, res.Sumreal, 1e-9)
	assert.InDelta(t, 0.5, res.Commission, 1e-12)
	assert.InDelta(t, 0.5, res.Funding, 1e-12)
}

func TestCalculateFundingOnly(t *testing.T) {
	// fund=0 zeroes sumreal but the funding component stays signed
	res := Calculate(ins(instrument.CategoryLinear), 100, -5, 0.001, 0, nil)
	assert.Zero(t, res.Sumreal)
	assert.InDelta(t, 0.5, res.Commission, 1e-12)
	assert.InDelta(t, -0.5, res.Funding, 1e-12)
}

func TestCalculateExecFeeOverridesRate(t *testing.T) {
	fee := 0.125
	res := Calculate(ins(instrument.CategoryLinear), 100, 5, 0.001, 1, &fee)
	assert.InDelta(t, 0.125, res.Commission, 1e-12)
	assert.InDelta(t, 0.125, res.Funding, 1e-12)
}

func TestCalculateContractCoefficient(t *testing.T) {
	i := ins(instrument.CategoryLinear)
	i.ValueOfOneContract = 0.01
	i.Multiplier = 10
	res := Calculate(i, 100, 5, 0, 1, nil)
	// -5 * 100 * 0.01 * 10
	assert.InDelta(t, -50, res.Sumreal, 1e-9)
}

func TestRoundQty(t *testing.T) {
	i := ins(instrument.CategoryLinear)
	assert.Equal(t, 0.123, RoundQty(i, 0.1234))
	assert.Equal(t, 0.0, RoundQty(i, 0.0004))
	// 0.1+0.2 rounds back to an exact 0.3
	assert.Equal(t, 0.3, RoundQty(i, 0.1+0.2))
}
