package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tmatic/internal/event"
	"tmatic/internal/logger"
	"tmatic/internal/store/eventlog"
	"tmatic/internal/store/model"
)

// AsyncAppender moves durable trade-ledger appends off the engine's write
// lock. The dedup check already ran synchronously, so a retried insert is a
// no-op at the database level.
type AsyncAppender struct {
	store LedgerStore
	ch    chan *model.TradeModel
}

func NewAsyncAppender(store LedgerStore, capacity int) *AsyncAppender {
	if capacity <= 0 {
		capacity = 1024
	}
	return &AsyncAppender{store: store, ch: make(chan *model.TradeModel, capacity)}
}

// Enqueue blocks when the queue is full: ledger rows are financial state and
// must not be dropped.
func (a *AsyncAppender) Enqueue(rec *model.TradeModel) {
	a.ch <- rec
}

// Run drains the queue until ctx is canceled, then flushes what is already
// queued.
func (a *AsyncAppender) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-a.ch:
			a.insert(ctx, rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-a.ch:
					a.insert(context.Background(), rec)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (a *AsyncAppender) insert(ctx context.Context, rec *model.TradeModel) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = a.store.InsertTrade(ctx, rec); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	logger.Errorf("ledger append failed after retries execID=%s err=%v", rec.ExecID, err)
}

// NotificationLog persists outbound notifications for operator review.
type NotificationLog interface {
	Append(ctx context.Context, rec eventlog.Record) error
}

type routed struct {
	market string
	ev     event.Event
}

// Dispatcher owns the per-market inbound queues and the single consumer that
// applies events to the engines. Per-market ordering is preserved: each
// market has its own FIFO queue and one forwarder; one consumer serializes
// everything.
type Dispatcher struct {
	engines  map[string]*Engine
	queues   map[string]chan event.Event
	queueCap int
	notifier *Notifier
	appender *AsyncAppender
	log      NotificationLog
}

func NewDispatcher(notifier *Notifier, appender *AsyncAppender, log NotificationLog, queueCap int) *Dispatcher {
	if queueCap <= 0 {
		queueCap = 4096
	}
	return &Dispatcher{
		engines:  make(map[string]*Engine),
		queues:   make(map[string]chan event.Event),
		queueCap: queueCap,
		notifier: notifier,
		appender: appender,
		log:      log,
	}
}

// Register adds an engine. Must be called before Run.
func (d *Dispatcher) Register(e *Engine) error {
	if _, ok := d.engines[e.Market()]; ok {
		return fmt.Errorf("market %s already registered", e.Market())
	}
	d.engines[e.Market()] = e
	d.queues[e.Market()] = make(chan event.Event, d.queueCap)
	return nil
}

// Engine returns the engine for a market.
func (d *Dispatcher) Engine(market string) (*Engine, bool) {
	e, ok := d.engines[market]
	return e, ok
}

// Engines lists all registered engines.
func (d *Dispatcher) Engines() []*Engine {
	out := make([]*Engine, 0, len(d.engines))
	for _, e := range d.engines {
		out = append(out, e)
	}
	return out
}

// Submit places one event on its market's queue, blocking when the queue is
// full so the producer's per-market order is never broken.
func (d *Dispatcher) Submit(ctx context.Context, market string, ev event.Event) error {
	q, ok := d.queues[market]
	if !ok {
		return fmt.Errorf("no engine registered for market %s", market)
	}
	select {
	case q <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the forwarders, the single consumer, the async appender and the
// notification sink. It returns when ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	inbox := make(chan routed, d.queueCap)

	for market, q := range d.queues {
		market, q := market, q
		g.Go(func() error {
			for {
				select {
				case ev := <-q:
					select {
					case inbox <- routed{market: market, ev: ev}:
					case <-ctx.Done():
						return ctx.Err()
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case r := <-inbox:
				e := d.engines[r.market]
				if err := e.Process(ctx, r.ev); err != nil {
					var intErr *DeliveryIntegrityError
					switch {
					case errors.As(err, &intErr):
						// Engine already halted the instrument; keep the
						// pipeline alive for other markets and symbols.
						logger.Errorf("%s: reconciliation halted: %v", r.market, err)
					case errors.Is(err, ErrHalted):
						logger.Warnf("%s: event dropped: %v", r.market, err)
					default:
						logger.Errorf("%s: event processing failed: %v", r.market, err)
					}
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if d.appender != nil {
		g.Go(func() error { return d.appender.Run(ctx) })
	}
	if d.notifier != nil {
		g.Go(func() error { return d.drainNotifications(ctx) })
	}
	return g.Wait()
}

func (d *Dispatcher) drainNotifications(ctx context.Context) error {
	for {
		select {
		case n := <-d.notifier.C():
			switch n.Severity {
			case SeverityError:
				logger.Errorf("%s: %s", n.Market, n.Message)
			case SeverityWarning:
				logger.Warnf("%s: %s", n.Market, n.Message)
			default:
				logger.Debugf("%s: %s", n.Market, n.Message)
			}
			if d.log != nil {
				rec := eventlog.Record{
					TraceID:   n.ID,
					Timestamp: n.Time,
					Market:    n.Market,
					Strategy:  n.Strategy,
					Symbol:    n.Symbol.Symbol,
					Severity:  string(n.Severity),
					Message:   n.Message,
				}
				if err := d.log.Append(ctx, rec); err != nil {
					logger.Warnf("notification log append failed: %v", err)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
