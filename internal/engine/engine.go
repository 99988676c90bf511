// Package engine applies canonical exchange events to the open-order book,
// the position ledger and the persisted trade ledger. All mutation is
// serialized under one write lock so that the three stay consistent; readers
// only ever take a brief lock around a snapshot copy.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tmatic/internal/book"
	"tmatic/internal/event"
	"tmatic/internal/format"
	"tmatic/internal/instrument"
	"tmatic/internal/logger"
	"tmatic/internal/position"
	"tmatic/internal/store/model"
)

// LedgerStore is the persistent append-only trade ledger.
type LedgerStore interface {
	HasExecution(ctx context.Context, execID string, account int64) (bool, error)
	InsertTrade(ctx context.Context, rec *model.TradeModel) error
	NetQty(ctx context.Context, emi, market string, account int64) (float64, error)
}

// Appender accepts ledger rows for durable append outside the write lock.
// Rows are already deduplicated; a retried append is idempotent.
type Appender interface {
	Enqueue(rec *model.TradeModel)
}

// Config wires one engine instance. One engine serves one exchange
// connection (market + account).
type Config struct {
	Market     string
	Account    int64
	Catalog    *instrument.Catalog
	Store      LedgerStore
	Appender   Appender // optional; nil appends synchronously
	Notifier   *Notifier
	Strategies []string // tracked strategy ids
}

// Engine is the reconciliation state machine.
type Engine struct {
	market   string
	account  int64
	catalog  *instrument.Catalog
	store    LedgerStore
	appender Appender
	notifier *Notifier

	mu         sync.RWMutex
	book       *book.Book
	ledger     *position.Ledger
	strategies map[string]bool
	execSeen   map[string]bool // session-local dedup ahead of the async append
	halted     map[instrument.Key]bool

	seq      atomic.Int64
	Counters Counters
}

func New(cfg Config) (*Engine, error) {
	if cfg.Market == "" {
		return nil, fmt.Errorf("engine market cannot be empty")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("engine needs an instrument catalog")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine needs a ledger store")
	}
	e := &Engine{
		market:     cfg.Market,
		account:    cfg.Account,
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		appender:   cfg.Appender,
		notifier:   cfg.Notifier,
		book:       book.New(),
		ledger:     position.NewLedger(),
		strategies: make(map[string]bool),
		execSeen:   make(map[string]bool),
		halted:     make(map[instrument.Key]bool),
	}
	for _, name := range cfg.Strategies {
		e.strategies[name] = true
	}
	return e, nil
}

func (e *Engine) Market() string { return e.market }

// TrackStrategy registers a strategy id so fills with its suffix are
// attributed to it instead of the manual bucket.
func (e *Engine) TrackStrategy(name string) {
	e.mu.Lock()
	e.strategies[name] = true
	e.mu.Unlock()
}

// Process applies one event. Malformed-event filtering happens in the
// normalizer; by the time an event reaches here its kind-specific fields are
// present. Errors other than *DeliveryIntegrityError are local to the event.
func (e *Engine) Process(ctx context.Context, ev event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted[ev.Instrument] {
		return fmt.Errorf("%w: %s", ErrHalted, ev.Instrument)
	}
	ins := e.instrument(ev)
	e.Counters.Processed.Add(1)

	switch ev.Kind {
	case event.KindTrade:
		return e.onTrade(ctx, ev, ins)
	case event.KindDelivery:
		return e.onDelivery(ctx, ev, ins)
	case event.KindFunding:
		return e.onFunding(ctx, ev, ins)
	case event.KindNew:
		e.onNew(ev, ins)
		return nil
	case event.KindCanceled, event.KindReplaced:
		e.ordersProcessing(ev, ins, "")
		return nil
	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
}

// instrument resolves the event's instrument, registering the catalog entry
// with the event's category when the symbol was never configured.
func (e *Engine) instrument(ev event.Event) instrument.Instrument {
	if ins, ok := e.catalog.Lookup(ev.Instrument); ok {
		return ins
	}
	ins := e.catalog.Get(ev.Instrument)
	if ev.Category != "" {
		ins.Category = ev.Category
	}
	if ev.Ticker != "" {
		ins.Ticker = ev.Ticker
	}
	e.catalog.Put(ins)
	return ins
}

// ownership resolves the strategy id, reference tag and numeric client id
// from the client order id. Unknown or absent suffixes attribute the trade to
// the instrument symbol itself, the manual bucket.
func (e *Engine) ownership(ev event.Event) (emi, refer string, clientID int64) {
	if ev.ClOrdID != "" {
		id, strategy, ok := event.SplitClOrdID(ev.ClOrdID)
		if ok && strategy != "" {
			emi, refer, clientID = strategy, strategy, id
		} else {
			emi, clientID = ev.Instrument.Symbol, id
		}
	} else {
		emi = ev.Instrument.Symbol
	}
	if !e.strategies[emi] {
		emi = ev.Instrument.Symbol
	}
	return emi, refer, clientID
}

func (e *Engine) onTrade(ctx context.Context, ev event.Event, ins instrument.Instrument) error {
	emi, refer, clientID := e.ownership(ev)

	dup, err := e.isDuplicate(ctx, ev.ExecID)
	if err != nil {
		return fmt.Errorf("dedup check for exec %s: %w", ev.ExecID, err)
	}
	if dup {
		// Same execution arriving again, typically once from the live
		// stream and once from a historical backfill. Nothing mutates.
		e.Counters.Duplicates.Add(1)
		e.notify(emi, ev.Instrument, SeverityInfo,
			fmt.Sprintf("duplicate execution ignored execID=%s", ev.ExecID))
		return nil
	}
	e.bookFill(ctx, ev, ins, emi, refer, clientID)
	e.ordersProcessing(ev, ins, "")
	return nil
}

// isDuplicate consults the session set first so an execution waiting in the
// async append queue still dedups, then falls back to the persisted ledger.
func (e *Engine) isDuplicate(ctx context.Context, execID string) (bool, error) {
	if e.execSeen[execID] {
		return true, nil
	}
	has, err := e.store.HasExecution(ctx, execID, e.account)
	if err != nil {
		return false, err
	}
	return has, nil
}

// bookFill applies a trade or delivery leg: position, settlement result and
// ledger row. Delivery legs carry zero commission.
func (e *Engine) bookFill(ctx context.Context, ev event.Event, ins instrument.Instrument, emi, refer string, clientID int64) {
	signedQty := ev.LastQty * ev.Side.Sign()
	signedLeaves := ev.LeavesQty * ev.Side.Sign()
	calc := position.Calculate(ins, ev.LastPrice, signedQty, ev.Commission, 1, ev.ExecFee)
	if refer == "Delivery" {
		calc.Commission = 0
	}
	e.ledger.ApplyFill(emi, ins, signedQty, calc.Sumreal, calc.Commission, ev.TransactTime)
	e.ledger.AddSettlement(ev.SettlCurrency, calc.Sumreal, calc.Commission)
	e.execSeen[ev.ExecID] = true
	e.append(ctx, &model.TradeModel{
		ExecID:       ev.ExecID,
		Account:      e.account,
		EMI:          emi,
		Refer:        refer,
		Currency:     ev.SettlCurrency,
		Symbol:       ev.Instrument.Symbol,
		Ticker:       ins.Ticker,
		Category:     string(ins.Category),
		Market:       e.market,
		Side:         string(ev.Side),
		Qty:          signedQty,
		LeavesQty:    signedLeaves,
		Price:        ev.Price,
		TradePrice:   ev.LastPrice,
		Sumreal:      calc.Sumreal,
		Commission:   calc.Commission,
		ClientID:     clientID,
		TransactTime: ev.TransactTime.UnixMicro(),
		RawData:      datatypes.JSON(ev.Raw),
	})
	e.notify(emi, ev.Instrument, SeverityInfo, fmt.Sprintf("%s %s %s price=%s qty=%s emi=%s",
		ev.Kind, ev.Instrument.Symbol, ev.Side,
		format.Price(ins, ev.LastPrice), format.Volume(ins, ev.LastQty), emi))
}

func (e *Engine) onDelivery(ctx context.Context, ev event.Event, ins instrument.Instrument) error {
	dup, err := e.isDuplicate(ctx, ev.ExecID)
	if err != nil {
		return fmt.Errorf("dedup check for delivery %s: %w", ev.ExecID, err)
	}
	if dup {
		// Typically the live stream and a historical backfill reporting the
		// same settlement. Positions are already closed; nothing mutates.
		e.Counters.Duplicates.Add(1)
		e.notify(ev.Instrument.Symbol, ev.Instrument, SeverityInfo,
			fmt.Sprintf("duplicate delivery ignored execID=%s", ev.ExecID))
		return nil
	}
	signedLast := ev.LastQty * ev.Side.Sign()

	// Close every strategy's position with a synthetic trade at the
	// delivered price. Holders are sorted by strategy id so remainder
	// attribution is deterministic.
	var pos float64
	for i, holder := range e.ledger.HoldersOf(ev.Instrument) {
		leg := ev
		leg.LastQty = abs(holder.Position)
		if holder.Position > 0 {
			leg.Side = event.SideSell
		} else {
			leg.Side = event.SideBuy
		}
		leg.ExecID = fmt.Sprintf("%s-%d", ev.ExecID, i)
		pos += holder.Position
		e.bookFill(ctx, leg, ins, holder.Strategy, "Delivery", 0)
	}

	diff := roundTo(ins.Precision, -(signedLast + pos))
	if diff == 0 {
		e.execSeen[ev.ExecID] = true
		return nil
	}

	// The residual must match the persisted net position of the manual
	// bucket exactly; a mismatch means a trade is missing from history.
	persisted, err := e.store.NetQty(ctx, ev.Instrument.Symbol, e.market, e.account)
	if err != nil {
		return fmt.Errorf("querying persisted position for %s: %w", ev.Instrument, err)
	}
	if roundTo(ins.Precision, persisted) != diff {
		e.Counters.Integrity.Add(1)
		e.halted[ev.Instrument] = true
		intErr := &DeliveryIntegrityError{Instrument: ev.Instrument, Residual: diff, Persisted: persisted}
		e.notify(ev.Instrument.Symbol, ev.Instrument, SeverityError, intErr.Error())
		logger.Errorf("%s: %v", e.market, intErr)
		return intErr
	}

	leg := ev
	leg.LastQty = abs(diff)
	if diff > 0 {
		leg.Side = event.SideSell
	} else {
		leg.Side = event.SideBuy
	}
	leg.ExecID = ev.ExecID + "-residual"
	e.bookFill(ctx, leg, ins, ev.Instrument.Symbol, "Delivery", 0)
	// Marked only on success: after an integrity halt the operator fixes
	// history and the settlement may be replayed.
	e.execSeen[ev.ExecID] = true
	return nil
}

func (e *Engine) onFunding(ctx context.Context, ev event.Event, ins instrument.Instrument) error {
	// Funding never matches open orders; it books against the symbol bucket.
	// The quantity arrives already signed for the funding direction.
	calc := position.Calculate(ins, ev.LastPrice, ev.LastQty, ev.Commission, 0, ev.ExecFee)
	emi := ev.Instrument.Symbol

	dup, err := e.isDuplicate(ctx, ev.ExecID)
	if err != nil {
		return fmt.Errorf("dedup check for funding %s: %w", ev.ExecID, err)
	}
	if dup {
		e.Counters.Duplicates.Add(1)
		return nil
	}
	e.execSeen[ev.ExecID] = true
	e.ledger.AddFunding(ev.SettlCurrency, calc.Funding)
	e.append(ctx, &model.TradeModel{
		ExecID:       ev.ExecID,
		Account:      e.account,
		EMI:          emi,
		Currency:     ev.SettlCurrency,
		Symbol:       ev.Instrument.Symbol,
		Ticker:       ins.Ticker,
		Category:     string(ins.Category),
		Market:       e.market,
		Side:         model.SideFund,
		Qty:          ev.LastQty,
		Price:        ev.LastPrice,
		TradePrice:   ev.Price,
		Sumreal:      calc.Sumreal,
		Commission:   calc.Funding,
		TransactTime: ev.TransactTime.UnixMicro(),
		RawData:      datatypes.JSON(ev.Raw),
	})
	e.notify(emi, ev.Instrument, SeverityInfo, fmt.Sprintf("Funding %s qty=%s payment=%.8f",
		ev.Instrument.Symbol, format.Volume(ins, ev.LastQty), calc.Funding))
	return nil
}

func (e *Engine) onNew(ev event.Event, ins instrument.Instrument) {
	info := ""
	if _, strategy, _ := event.SplitClOrdID(ev.ClOrdID); ev.ClOrdID == "" || strategy == "" {
		// Placed outside this application, with no id or an id carrying no
		// strategy suffix: synthesize an id owned by the manual bucket so
		// every order stays attributable.
		ev.ClOrdID = event.FormatClOrdID(e.seq.Add(1), ev.Instrument.Symbol)
		info = "Outside placement: "
	} else if e.book.Contains(ev.ClOrdID) {
		// Some exchanges report a moved order as a fresh New. Membership in
		// the open-order set wins over the declared kind. This is a
		// documented approximation: it misfires if a client order id is
		// reused after an external cancel.
		ev.Kind = event.KindReplaced
	}
	e.ordersProcessing(ev, ins, info)
}

// ordersProcessing is the order-book half of the state machine: it locates
// the order referenced by the event and advances its lifecycle.
func (e *Engine) ordersProcessing(ev event.Event, ins instrument.Instrument, info string) {
	emi := ev.Instrument.Symbol
	clOrdID := ev.ClOrdID
	found := false
	if _, strategy, ok := event.SplitClOrdID(clOrdID); ok && strategy != "" {
		emi = strategy
		_, found = e.book.Find(emi, clOrdID)
	} else if o, ok := e.book.FindByOrderID(ev.OrderID); ok {
		// No strategy suffix on the client id (or no id at all); fall back
		// to the exchange order id.
		emi, clOrdID, found = o.Strategy, o.ClOrdID, true
	}

	var infoPrice, infoQty float64
	switch ev.Kind {
	case event.KindCanceled:
		infoPrice = ev.Price
		infoQty = ev.OrderQty - ev.CumQty
		if found {
			e.book.Remove(emi, clOrdID)
			found = false
		} else {
			e.orderNotFound(ev, clOrdID)
			return
		}
	case event.KindNew:
		e.book.Upsert(book.OpenOrder{
			Strategy:     emi,
			ClOrdID:      clOrdID,
			OrderID:      ev.OrderID,
			Instrument:   ev.Instrument,
			Ticker:       ins.Ticker,
			Category:     ins.Category,
			Side:         ev.Side,
			Price:        ev.Price,
			OrderQty:     ev.OrderQty,
			LeavesQty:    ev.LeavesQty,
			TransactTime: ev.TransactTime,
		})
		found = true
		infoPrice = ev.Price
		infoQty = ev.OrderQty
	case event.KindTrade:
		infoPrice = ev.LastPrice
		infoQty = ev.LastQty
		if found {
			removed := false
			e.book.Mutate(emi, clOrdID, func(o *book.OpenOrder) {
				o.LeavesQty = roundTo(ins.Precision, o.LeavesQty-ev.LastQty)
				removed = o.LeavesQty == 0
			})
			if removed {
				e.book.Remove(emi, clOrdID)
				found = false
			}
		} else {
			e.orderNotFound(ev, clOrdID)
			return
		}
	case event.KindReplaced:
		infoPrice = ev.Price
		infoQty = ev.LeavesQty
		if found {
			e.book.Mutate(emi, clOrdID, func(o *book.OpenOrder) {
				o.OrderID = ev.OrderID
				o.Price = ev.Price
				o.LeavesQty = ev.LeavesQty
			})
		} else {
			e.orderNotFound(ev, clOrdID)
			return
		}
	}

	if found {
		e.book.Mutate(emi, clOrdID, func(o *book.OpenOrder) {
			o.Price = ev.Price
			o.TransactTime = ev.TransactTime
		})
		e.book.MoveToRecent(emi, clOrdID)
	}
	if infoQty != 0 {
		msg := fmt.Sprintf("%s%s emi=%s, side=%s, price=%s, qty=%s",
			info, ev.Kind, emi, ev.Side,
			format.Price(ins, infoPrice), format.Volume(ins, infoQty))
		e.notify(emi, ev.Instrument, SeverityInfo, msg)
		logger.Infof("%s - %s - orderID=%s, clOrdID=%s", e.market, msg, ev.OrderID, clOrdID)
	}
}

func (e *Engine) orderNotFound(ev event.Event, clOrdID string) {
	e.Counters.OrderNotFound.Add(1)
	if clOrdID == "" {
		clOrdID = "Empty"
	}
	msg := fmt.Sprintf("execType %s - order with clOrdID %s not found", ev.Kind, clOrdID)
	e.notify(ev.Instrument.Symbol, ev.Instrument, SeverityWarning, msg)
	logger.Warnf("%s: %s", e.market, msg)
}

// append hands the row to the async appender when one is wired, otherwise
// writes through. The unique ledger index makes either path retryable.
func (e *Engine) append(ctx context.Context, rec *model.TradeModel) {
	if e.appender != nil {
		e.appender.Enqueue(rec)
		return
	}
	if err := e.store.InsertTrade(ctx, rec); err != nil {
		logger.Errorf("%s: ledger append failed execID=%s err=%v", e.market, rec.ExecID, err)
	}
}

func (e *Engine) notify(strategy string, symbol instrument.Key, severity Severity, message string) {
	if e.notifier != nil {
		e.notifier.Publish(e.market, strategy, symbol, severity, message)
	}
}

// SetLimit updates a position limit at runtime (config reload).
func (e *Engine) SetLimit(strategy string, key instrument.Key, limit float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.SetLimit(strategy, key, limit)
}

// Resume lifts the halt set by a delivery integrity failure after the
// operator has reconciled history.
func (e *Engine) Resume(key instrument.Key) {
	e.mu.Lock()
	delete(e.halted, key)
	e.mu.Unlock()
}

// Halted reports instruments stopped by integrity failures.
func (e *Engine) Halted() []instrument.Key {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]instrument.Key, 0, len(e.halted))
	for k := range e.halted {
		out = append(out, k)
	}
	return out
}

// Snapshot is the read-side view. Copies are taken under a short read lock;
// readers tolerate slight staleness rather than blocking the writer.
type Snapshot struct {
	Market      string                      `json:"market"`
	Orders      map[string][]book.OpenOrder `json:"orders"`
	Positions   []position.StrategyPosition `json:"positions"`
	Settlements []position.SettlementResult `json:"settlements"`
	Halted      []instrument.Key            `json:"halted,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{
		Market:      e.market,
		Orders:      e.book.All(),
		Positions:   e.ledger.Positions(),
		Settlements: e.ledger.Settlements(),
	}
	for k := range e.halted {
		snap.Halted = append(snap.Halted, k)
	}
	return snap
}

// Position exposes one ledger row for tests and strategy helpers.
func (e *Engine) Position(strategy string, key instrument.Key) (position.StrategyPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Position(strategy, key)
}

// Orders exposes one strategy's open orders, oldest first.
func (e *Engine) Orders(strategy string) []book.OpenOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Orders(strategy)
}

// Restore seeds ledger positions from persisted history at boot.
func (e *Engine) Restore(rows []model.PositionRow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, row := range rows {
		key := instrument.Key{Symbol: row.Symbol, Market: row.Market}
		ins := e.catalog.Get(key)
		e.ledger.Restore(row.EMI, ins, row.Position, row.Volume, row.Sumreal, row.Commission)
	}
}

func roundTo(precision int32, v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(precision).Float64()
	return f
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
