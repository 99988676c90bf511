package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"tmatic/internal/instrument"
)

// ErrOrderNotFound marks a Cancel/Trade/Replace referencing a client order id
// this process does not track. It is a warning: the financial ledger is still
// advanced for trades, cancels are dropped.
var ErrOrderNotFound = errors.New("order not found")

// ErrHalted is returned for events on an instrument whose automated
// processing was stopped by a delivery integrity failure.
var ErrHalted = errors.New("instrument halted pending operator review")

// DeliveryIntegrityError reports that the sum of per-strategy positions at
// expiry does not match the exchange-reported delivered quantity. It is never
// auto-corrected: it means a trade is missing somewhere in history.
type DeliveryIntegrityError struct {
	Instrument instrument.Key
	Residual   float64
	Persisted  float64
}

func (e *DeliveryIntegrityError) Error() string {
	return fmt.Sprintf("delivery integrity failure on %s: residual %v does not match persisted net position %v",
		e.Instrument, e.Residual, e.Persisted)
}

// Counters tracks per-engine processing statistics.
type Counters struct {
	Processed     atomic.Uint64
	Malformed     atomic.Uint64
	OrderNotFound atomic.Uint64
	Duplicates    atomic.Uint64
	Integrity     atomic.Uint64
}

// CounterSnapshot is a copyable view of Counters.
type CounterSnapshot struct {
	Processed     uint64 `json:"processed"`
	Malformed     uint64 `json:"malformed"`
	OrderNotFound uint64 `json:"order_not_found"`
	Duplicates    uint64 `json:"duplicates"`
	Integrity     uint64 `json:"integrity_errors"`
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Processed:     c.Processed.Load(),
		Malformed:     c.Malformed.Load(),
		OrderNotFound: c.OrderNotFound.Load(),
		Duplicates:    c.Duplicates.Load(),
		Integrity:     c.Integrity.Load(),
	}
}
