package event

import (
	"time"

	"tmatic/internal/instrument"
)

// Kind discriminates canonical exchange notifications. The reconciliation
// state machine switches over it exhaustively.
type Kind string

const (
	KindNew      Kind = "New"
	KindTrade    Kind = "Trade"
	KindDelivery Kind = "Delivery"
	KindFunding  Kind = "Funding"
	KindCanceled Kind = "Canceled"
	KindReplaced Kind = "Replaced"
)

// Valid reports whether k is one of the six canonical kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNew, KindTrade, KindDelivery, KindFunding, KindCanceled, KindReplaced:
		return true
	}
	return false
}

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Sign maps the side to the internal signed-quantity convention.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Event is one normalized exchange notification. Quantities are unsigned;
// the sign convention is applied by the engine and the position ledger.
// Fields not relevant to the declared Kind are left zero.
type Event struct {
	Kind       Kind
	Instrument instrument.Key
	Ticker     string
	Category   instrument.Category
	Side       Side

	OrderID string
	ClOrdID string

	Price     float64 // order price
	LastPrice float64 // last fill / settlement price
	OrderQty  float64
	LeavesQty float64
	LastQty   float64
	CumQty    float64

	ExecID        string
	Commission    float64 // fee or funding rate
	ExecFee       *float64
	SettlCurrency string

	TransactTime time.Time

	// Raw is the adapter record the event was normalized from, persisted
	// alongside the ledger row for audit.
	Raw []byte
}
