// Package binance translates futures user-data order updates into the
// canonical raw records consumed by the event normalizer. It is the only
// place Binance field names appear; everything downstream speaks the
// canonical vocabulary.
package binance

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"tmatic/internal/logger"
)

// Adapter converts one exchange connection's notifications.
type Adapter struct {
	market  string
	catName string
}

func NewAdapter(market string) *Adapter {
	return &Adapter{market: market, catName: "linear"}
}

// execution type → canonical execType
var execTypes = map[futures.OrderExecutionType]string{
	futures.OrderExecutionTypeNew:      "New",
	futures.OrderExecutionTypeTrade:    "Trade",
	futures.OrderExecutionTypeCanceled: "Canceled",
	futures.OrderExecutionTypeExpired:  "Canceled",
	"AMENDMENT":                        "Replaced",
}

// Translate maps a user-data event to a canonical raw record. ok is false
// for event types the reconciliation core does not consume.
func (a *Adapter) Translate(ev *futures.WsUserDataEvent) ([]byte, bool) {
	if ev == nil || ev.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return nil, false
	}
	u := ev.OrderTradeUpdate
	execType, ok := execTypes[u.ExecutionType]
	if !ok {
		return nil, false
	}
	orderQty := parseFloat(u.OriginalQty)
	cumQty := parseFloat(u.AccumulatedFilledQty)
	row := map[string]any{
		"execType":      execType,
		"symbol":        u.Symbol,
		"ticker":        u.Symbol,
		"market":        a.market,
		"category":      a.catName,
		"side":          canonicalSide(u.Side),
		"orderID":       strconv.FormatInt(u.ID, 10),
		"price":         parseFloat(u.OriginalPrice),
		"orderQty":      orderQty,
		"leavesQty":     orderQty - cumQty,
		"cumQty":        cumQty,
		"settlCurrency": settlCurrency(u.CommissionAsset),
		"transactTime":  ev.TransactionTime * 1000, // ms → µs
	}
	if u.ClientOrderID != "" {
		row["clOrdID"] = u.ClientOrderID
	}
	if execType == "Trade" {
		row["execID"] = strconv.FormatInt(u.TradeID, 10)
		row["lastQty"] = parseFloat(u.LastFilledQty)
		row["lastPx"] = parseFloat(u.LastFilledPrice)
		if u.Commission != "" {
			row["execFee"] = parseFloat(u.Commission)
		}
		row["commission"] = 0.0
	}
	raw, err := json.Marshal(row)
	if err != nil {
		logger.Warnf("binance: marshal of order update failed: %v", err)
		return nil, false
	}
	return raw, true
}

// Serve subscribes to the user data stream and feeds every translated record
// to submit until ctx is canceled.
func (a *Adapter) Serve(ctx context.Context, listenKey string, submit func([]byte)) error {
	handler := func(ev *futures.WsUserDataEvent) {
		if raw, ok := a.Translate(ev); ok {
			submit(raw)
		}
	}
	errHandler := func(err error) {
		logger.Warnf("binance: user data stream error: %v", err)
	}
	doneC, stopC, err := futures.WsUserDataServe(listenKey, handler, errHandler)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		return nil
	}
}

func canonicalSide(side futures.SideType) string {
	if side == futures.SideTypeSell {
		return "Sell"
	}
	return "Buy"
}

func settlCurrency(asset string) string {
	if asset == "" {
		return "USDT"
	}
	return asset
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
