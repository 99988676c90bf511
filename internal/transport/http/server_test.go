package reconhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tmatic/internal/engine"
	"tmatic/internal/event"
	"tmatic/internal/instrument"
	"tmatic/internal/store/model"
)

type memStore struct {
	mu    sync.Mutex
	rows  []*model.TradeModel
	execs map[string]bool
}

func (s *memStore) HasExecution(_ context.Context, execID string, _ int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs[execID], nil
}

func (s *memStore) InsertTrade(_ context.Context, rec *model.TradeModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[rec.ExecID] = true
	s.rows = append(s.rows, rec)
	return nil
}

func (s *memStore) NetQty(context.Context, string, string, int64) (float64, error) {
	return 0, nil
}

func (s *memStore) RecentTrades(_ context.Context, limit int) ([]model.TradeModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TradeModel, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.rows[i])
	}
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *engine.Engine, *memStore) {
	t.Helper()
	store := &memStore{execs: make(map[string]bool)}
	catalog := instrument.NewCatalog()
	catalog.Put(instrument.Instrument{
		Symbol:         "BTCUSDT",
		Market:         "Binance",
		Category:       instrument.CategoryLinear,
		Precision:      3,
		PricePrecision: 2,
	})
	e, err := engine.New(engine.Config{
		Market:     "Binance",
		Account:    1001,
		Catalog:    catalog,
		Store:      store,
		Strategies: []string{"bot1"},
	})
	require.NoError(t, err)

	d := engine.NewDispatcher(nil, nil, nil, 16)
	require.NoError(t, d.Register(e))

	srv, err := NewServer(ServerConfig{Dispatcher: d, Trades: store})
	require.NoError(t, err)
	return srv, e, store
}

func get(t *testing.T, srv *Server, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func TestMarkets(t *testing.T) {
	srv, _, _ := newTestServer(t)
	code, body := get(t, srv, "/api/markets")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Binance", gjson.GetBytes(body, "markets.0").String())
}

func TestUnknownMarket(t *testing.T) {
	srv, _, _ := newTestServer(t)
	code, _ := get(t, srv, "/api/markets/Nowhere/orders")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOrdersAndPositions(t *testing.T) {
	srv, e, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, e.Process(ctx, event.Event{
		Kind:          event.KindNew,
		Instrument:    instrument.Key{Symbol: "BTCUSDT", Market: "Binance"},
		Side:          event.SideBuy,
		OrderID:       "x1",
		ClOrdID:       "1.bot1",
		Price:         100,
		OrderQty:      5,
		LeavesQty:     5,
		SettlCurrency: "USDT",
		TransactTime:  time.Now().UTC(),
	}))
	require.NoError(t, e.Process(ctx, event.Event{
		Kind:          event.KindTrade,
		Instrument:    instrument.Key{Symbol: "BTCUSDT", Market: "Binance"},
		Side:          event.SideBuy,
		OrderID:       "x1",
		ClOrdID:       "1.bot1",
		Price:         100,
		LastPrice:     100,
		LastQty:       2,
		LeavesQty:     3,
		ExecID:        "e1",
		SettlCurrency: "USDT",
		TransactTime:  time.Now().UTC(),
	}))

	code, body := get(t, srv, "/api/markets/Binance/orders")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "orders.bot1.#").Int())
	assert.Equal(t, 3.0, gjson.GetBytes(body, "orders.bot1.0.LeavesQty").Float())

	code, body = get(t, srv, "/api/markets/Binance/positions")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, gjson.GetBytes(body, "positions.0.Position").Float())

	code, body = get(t, srv, "/api/markets/Binance/settlements")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "USDT", gjson.GetBytes(body, "settlements.0.Currency").String())
}

func TestCounters(t *testing.T) {
	srv, e, _ := newTestServer(t)

	cancel := event.Event{
		Kind:         event.KindCanceled,
		Instrument:   instrument.Key{Symbol: "BTCUSDT", Market: "Binance"},
		Side:         event.SideBuy,
		OrderID:      "ghost",
		ClOrdID:      "9.bot1",
		OrderQty:     1,
		TransactTime: time.Now().UTC(),
	}
	require.NoError(t, e.Process(context.Background(), cancel))

	code, body := get(t, srv, "/api/markets/Binance/counters")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "counters.processed").Int())
	assert.Equal(t, int64(1), gjson.GetBytes(body, "counters.order_not_found").Int())
}

func TestTrades(t *testing.T) {
	srv, _, store := newTestServer(t)
	require.NoError(t, store.InsertTrade(context.Background(), &model.TradeModel{
		ExecID: "e1", EMI: "bot1", Symbol: "BTCUSDT", Market: "Binance", Qty: 5,
	}))

	code, body := get(t, srv, "/api/trades?limit=10")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "e1", gjson.GetBytes(body, "trades.0.ExecID").String())
}

func TestNewServerRequiresDispatcher(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
