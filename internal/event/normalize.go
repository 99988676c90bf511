package event

import (
	"encoding/json"
	"fmt"
	"time"

	"tmatic/internal/instrument"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// MalformedEventError marks a notification that cannot be reconciled because
// a field required by its declared kind is absent or unparsable. The event is
// skipped; processing continues.
type MalformedEventError struct {
	Kind   Kind
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Reason)
}

const baseRequired = `"execType", "symbol", "market", "category", "side", "transactTime"`

// One schema per kind; each lists only the fields that kind cannot be
// reconciled without.
var kindSchemas = map[Kind]string{
	KindNew:      `{"type": "object", "required": [` + baseRequired + `, "orderID", "price", "orderQty", "leavesQty"]}`,
	KindTrade:    `{"type": "object", "required": [` + baseRequired + `, "execID", "orderID", "lastQty", "lastPx", "leavesQty"]}`,
	KindDelivery: `{"type": "object", "required": [` + baseRequired + `, "execID", "lastQty", "lastPx"]}`,
	KindFunding:  `{"type": "object", "required": [` + baseRequired + `, "execID", "lastQty", "lastPx", "commission"]}`,
	KindCanceled: `{"type": "object", "required": [` + baseRequired + `, "orderID", "price", "orderQty", "cumQty"]}`,
	KindReplaced: `{"type": "object", "required": [` + baseRequired + `, "orderID", "price", "leavesQty"]}`,
}

// Normalizer converts adapter-level raw JSON records into canonical Events.
// It is stateless apart from the compiled schemas and safe for concurrent use.
type Normalizer struct {
	schemas map[Kind]*jsonschema.Schema
}

func NewNormalizer() (*Normalizer, error) {
	n := &Normalizer{schemas: make(map[Kind]*jsonschema.Schema, len(kindSchemas))}
	for kind, src := range kindSchemas {
		schema, err := jsonschema.CompileString(string(kind)+".json", src)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
		}
		n.schemas[kind] = schema
	}
	return n, nil
}

// Normalize parses one raw record. It is side-effect free: a returned error
// means the record must be dropped, never partially applied.
func (n *Normalizer) Normalize(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, &MalformedEventError{Reason: "invalid JSON"}
	}
	kind := Kind(gjson.GetBytes(raw, "execType").String())
	if !kind.Valid() {
		return Event{}, &MalformedEventError{Kind: kind, Reason: "unknown execType"}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Event{}, &MalformedEventError{Kind: kind, Reason: err.Error()}
	}
	if err := n.schemas[kind].Validate(doc); err != nil {
		return Event{}, &MalformedEventError{Kind: kind, Reason: err.Error()}
	}

	side := Side(gjson.GetBytes(raw, "side").String())
	if side != SideBuy && side != SideSell {
		return Event{}, &MalformedEventError{Kind: kind, Reason: "side must be Buy or Sell"}
	}

	ev := Event{
		Kind: kind,
		Instrument: instrument.Key{
			Symbol: gjson.GetBytes(raw, "symbol").String(),
			Market: gjson.GetBytes(raw, "market").String(),
		},
		Ticker:        gjson.GetBytes(raw, "ticker").String(),
		Category:      instrument.Category(gjson.GetBytes(raw, "category").String()),
		Side:          side,
		OrderID:       gjson.GetBytes(raw, "orderID").String(),
		ClOrdID:       gjson.GetBytes(raw, "clOrdID").String(),
		Price:         gjson.GetBytes(raw, "price").Float(),
		LastPrice:     gjson.GetBytes(raw, "lastPx").Float(),
		OrderQty:      gjson.GetBytes(raw, "orderQty").Float(),
		LeavesQty:     gjson.GetBytes(raw, "leavesQty").Float(),
		LastQty:       gjson.GetBytes(raw, "lastQty").Float(),
		CumQty:        gjson.GetBytes(raw, "cumQty").Float(),
		ExecID:        gjson.GetBytes(raw, "execID").String(),
		Commission:    gjson.GetBytes(raw, "commission").Float(),
		SettlCurrency: gjson.GetBytes(raw, "settlCurrency").String(),
		TransactTime:  time.UnixMicro(gjson.GetBytes(raw, "transactTime").Int()).UTC(),
	}
	ev.Raw = append([]byte(nil), raw...)
	if ev.Ticker == "" {
		ev.Ticker = ev.Instrument.Symbol
	}
	if fee := gjson.GetBytes(raw, "execFee"); fee.Exists() {
		v := fee.Float()
		ev.ExecFee = &v
	}
	// Funding direction is exchange-defined relative to the side; the ledger
	// expects the payment quantity already signed.
	if kind == KindFunding && side == SideSell {
		ev.LastQty = -ev.LastQty
	}
	return ev, nil
}
