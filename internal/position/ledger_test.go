package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmatic/internal/instrument"
)

func TestApplyFillAccumulates(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategoryLinear)
	i.MinOrderQty = 0.001
	ts := time.Now()

	l.ApplyFill("bot1", i, 5, -500, 0.5, ts)
	l.ApplyFill("bot1", i, -2, 200, 0.2, ts)

	p, ok := l.Position("bot1", i.Key())
	require.True(t, ok)
	assert.Equal(t, 3.0, p.Position)
	assert.Equal(t, 7.0, p.Volume)
	assert.InDelta(t, -300, p.Sumreal, 1e-9)
	assert.InDelta(t, 0.7, p.Commission, 1e-12)
	assert.Equal(t, 0.001, p.Limit)

	tot := l.Total(i.Key())
	assert.Equal(t, 7.0, tot.Volume)
	assert.InDelta(t, -300, tot.Sumreal, 1e-9)
}

func TestApplyFillSpotLeavesPositionZero(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategorySpot)

	l.ApplyFill("bot1", i, 5, 0, 0.5, time.Now())

	p, ok := l.Position("bot1", i.Key())
	require.True(t, ok)
	assert.Zero(t, p.Position)
	assert.Equal(t, 5.0, p.Volume)
}

func TestApplyFillRoundsPosition(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategoryLinear)

	l.ApplyFill("bot1", i, 0.1, 0, 0, time.Now())
	l.ApplyFill("bot1", i, 0.2, 0, 0, time.Now())
	l.ApplyFill("bot1", i, -0.3, 0, 0, time.Now())

	p, _ := l.Position("bot1", i.Key())
	assert.Zero(t, p.Position)
}

func TestSettlements(t *testing.T) {
	l := NewLedger()
	l.AddSettlement("USDT", -500, 0.5)
	l.AddSettlement("USDT", 200, 0.2)
	l.AddFunding("USDT", 1.5)
	l.AddSettlement("BTC", 0.001, 0)

	r := l.Settlement("USDT")
	assert.InDelta(t, -300, r.Sumreal, 1e-9)
	assert.InDelta(t, 0.7, r.Commission, 1e-12)
	assert.InDelta(t, 1.5, r.Funding, 1e-12)

	all := l.Settlements()
	require.Len(t, all, 2)
	assert.Equal(t, "BTC", all[0].Currency)
	assert.Equal(t, "USDT", all[1].Currency)
}

func TestHoldersOfSortedNonzero(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategoryLinear)
	ts := time.Now()

	l.ApplyFill("bot2", i, 3, 0, 0, ts)
	l.ApplyFill("bot1", i, -1, 0, 0, ts)
	l.ApplyFill("bot3", i, 2, 0, 0, ts)
	l.ApplyFill("bot3", i, -2, 0, 0, ts) // flat, excluded

	holders := l.HoldersOf(i.Key())
	require.Len(t, holders, 2)
	assert.Equal(t, "bot1", holders[0].Strategy)
	assert.Equal(t, "bot2", holders[1].Strategy)
}

func TestRestore(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategoryLinear)

	l.Restore("bot1", i, 2.5, 100, -250, 1.2)

	p, ok := l.Position("bot1", i.Key())
	require.True(t, ok)
	assert.Equal(t, 2.5, p.Position)
	assert.Equal(t, 100.0, p.Volume)
	assert.InDelta(t, -250, p.Sumreal, 1e-9)
	assert.InDelta(t, 1.2, p.Commission, 1e-12)

	tot := l.Total(i.Key())
	assert.Equal(t, 100.0, tot.Volume)
}

func TestSetLimit(t *testing.T) {
	l := NewLedger()
	i := ins(instrument.CategoryLinear)

	assert.False(t, l.SetLimit("bot1", i.Key(), 10))

	l.ApplyFill("bot1", i, 1, 0, 0, time.Now())
	require.True(t, l.SetLimit("bot1", i.Key(), 10))
	p, _ := l.Position("bot1", i.Key())
	assert.Equal(t, 10.0, p.Limit)
}

func TestPositionsSorted(t *testing.T) {
	l := NewLedger()
	btc := ins(instrument.CategoryLinear)
	eth := btc
	eth.Symbol = "ETHUSDT"
	ts := time.Now()

	l.ApplyFill("bot2", btc, 1, 0, 0, ts)
	l.ApplyFill("bot1", eth, 1, 0, 0, ts)
	l.ApplyFill("bot1", btc, 1, 0, 0, ts)

	rows := l.Positions()
	require.Len(t, rows, 3)
	assert.Equal(t, "bot1", rows[0].Strategy)
	assert.Equal(t, "BTCUSDT", rows[0].Instrument.Symbol)
	assert.Equal(t, "bot1", rows[1].Strategy)
	assert.Equal(t, "ETHUSDT", rows[1].Instrument.Symbol)
	assert.Equal(t, "bot2", rows[2].Strategy)
}
