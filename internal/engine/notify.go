package engine

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tmatic/internal/instrument"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one record on the outbound display/operator queue.
type Notification struct {
	ID       string         `json:"id"`
	Market   string         `json:"market"`
	Strategy string         `json:"strategy"`
	Symbol   instrument.Key `json:"symbol"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Time     time.Time      `json:"time"`
}

// Notifier decouples reconciliation from its consumers. Publish never blocks:
// when the queue is full the record is dropped and counted, so a stuck
// consumer cannot stall the writer.
type Notifier struct {
	ch      chan Notification
	dropped atomic.Uint64
}

func NewNotifier(capacity int) *Notifier {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Notifier{ch: make(chan Notification, capacity)}
}

func (n *Notifier) Publish(market, strategy string, symbol instrument.Key, severity Severity, message string) {
	rec := Notification{
		ID:       uuid.NewString(),
		Market:   market,
		Strategy: strategy,
		Symbol:   symbol,
		Severity: severity,
		Message:  message,
		Time:     time.Now().UTC(),
	}
	select {
	case n.ch <- rec:
	default:
		n.dropped.Add(1)
	}
}

// C is the consumer side of the queue.
func (n *Notifier) C() <-chan Notification { return n.ch }

// Dropped reports how many records were discarded on overflow.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }
