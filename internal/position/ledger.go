// Package position tracks per-strategy running positions, traded volume,
// realized value and fees, together with per-currency settlement results.
package position

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tmatic/internal/instrument"
)

// StrategyPosition is the running state of one (strategy, instrument) pair.
// A row exists only after the first fill.
type StrategyPosition struct {
	Strategy   string
	Instrument instrument.Key
	Position   float64
	Volume     float64
	Commission float64
	Sumreal    float64
	Limit      float64
	LastTrade  time.Time
}

// SettlementResult accumulates realized value, commission and funding for one
// settlement currency.
type SettlementResult struct {
	Currency   string
	Sumreal    float64
	Commission float64
	Funding    float64
}

// InstrumentTotal aggregates traded volume and realized value across all
// strategies for one instrument.
type InstrumentTotal struct {
	Instrument instrument.Key
	Volume     float64
	Sumreal    float64
}

type posKey struct {
	strategy string
	ins      instrument.Key
}

// Ledger is the position ledger. Not safe for concurrent use; the engine
// serializes access under its write lock.
type Ledger struct {
	positions   map[posKey]*StrategyPosition
	settlements map[string]*SettlementResult
	totals      map[instrument.Key]*InstrumentTotal
}

func NewLedger() *Ledger {
	return &Ledger{
		positions:   make(map[posKey]*StrategyPosition),
		settlements: make(map[string]*SettlementResult),
		totals:      make(map[instrument.Key]*InstrumentTotal),
	}
}

func (l *Ledger) row(strategy string, ins instrument.Instrument) *StrategyPosition {
	k := posKey{strategy: strategy, ins: ins.Key()}
	p := l.positions[k]
	if p == nil {
		p = &StrategyPosition{
			Strategy:   strategy,
			Instrument: ins.Key(),
			Limit:      ins.MinOrderQty,
		}
		l.positions[k] = p
	}
	return p
}

// ApplyFill books a signed fill. Spot fills move volume, commission and
// sumreal but never the position. The position is rounded to the instrument's
// quantity precision after every adjustment.
func (l *Ledger) ApplyFill(strategy string, ins instrument.Instrument, signedQty, sumreal, commission float64, ts time.Time) *StrategyPosition {
	p := l.row(strategy, ins)
	if !ins.Category.Spot() {
		pos := decimal.NewFromFloat(p.Position).Add(decimal.NewFromFloat(signedQty))
		p.Position = toFloat(pos.Round(ins.Precision))
	}
	p.Volume += abs(signedQty)
	p.Commission += commission
	p.Sumreal += sumreal
	p.LastTrade = ts

	t := l.totals[ins.Key()]
	if t == nil {
		t = &InstrumentTotal{Instrument: ins.Key()}
		l.totals[ins.Key()] = t
	}
	t.Volume += abs(signedQty)
	t.Sumreal += sumreal
	return p
}

// AddSettlement accrues realized value and commission for a settlement
// currency.
func (l *Ledger) AddSettlement(currency string, sumreal, commission float64) {
	r := l.settlement(currency)
	r.Sumreal += sumreal
	r.Commission += commission
}

// AddFunding accrues one funding payment.
func (l *Ledger) AddFunding(currency string, funding float64) {
	l.settlement(currency).Funding += funding
}

func (l *Ledger) settlement(currency string) *SettlementResult {
	r := l.settlements[currency]
	if r == nil {
		r = &SettlementResult{Currency: currency}
		l.settlements[currency] = r
	}
	return r
}

// Settlement returns the accumulated result for one currency.
func (l *Ledger) Settlement(currency string) SettlementResult {
	if r, ok := l.settlements[currency]; ok {
		return *r
	}
	return SettlementResult{Currency: currency}
}

// Settlements returns all settlement results sorted by currency.
func (l *Ledger) Settlements() []SettlementResult {
	out := make([]SettlementResult, 0, len(l.settlements))
	for _, r := range l.settlements {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Position returns the row for (strategy, instrument), if any.
func (l *Ledger) Position(strategy string, key instrument.Key) (StrategyPosition, bool) {
	p, ok := l.positions[posKey{strategy: strategy, ins: key}]
	if !ok {
		return StrategyPosition{}, false
	}
	return *p, true
}

// Positions returns all rows sorted by strategy then symbol.
func (l *Ledger) Positions() []StrategyPosition {
	out := make([]StrategyPosition, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Instrument.String() < out[j].Instrument.String()
	})
	return out
}

// HoldersOf lists strategies with a nonzero position in the instrument,
// sorted by strategy id. Delivery distribution iterates this order so that
// rounding remainder attribution is deterministic.
func (l *Ledger) HoldersOf(key instrument.Key) []StrategyPosition {
	var out []StrategyPosition
	for _, p := range l.positions {
		if p.Instrument == key && p.Position != 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// Total returns the aggregate volume/sumreal for one instrument.
func (l *Ledger) Total(key instrument.Key) InstrumentTotal {
	if t, ok := l.totals[key]; ok {
		return *t
	}
	return InstrumentTotal{Instrument: key}
}

// Restore seeds one row from persisted history at boot, bypassing the
// per-fill rounding path.
func (l *Ledger) Restore(strategy string, ins instrument.Instrument, pos, volume, sumreal, commission float64) {
	p := l.row(strategy, ins)
	if !ins.Category.Spot() {
		p.Position = RoundQty(ins, pos)
	}
	p.Volume = volume
	p.Sumreal = sumreal
	p.Commission = commission

	t := l.totals[ins.Key()]
	if t == nil {
		t = &InstrumentTotal{Instrument: ins.Key()}
		l.totals[ins.Key()] = t
	}
	t.Volume += volume
	t.Sumreal += sumreal
}

// SetLimit updates the position limit for a (strategy, instrument) pair that
// already has a row; limits for unseen pairs apply when the row is created.
func (l *Ledger) SetLimit(strategy string, key instrument.Key, limit float64) bool {
	p, ok := l.positions[posKey{strategy: strategy, ins: key}]
	if !ok {
		return false
	}
	p.Limit = limit
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
