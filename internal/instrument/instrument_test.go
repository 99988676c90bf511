package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryClassification(t *testing.T) {
	assert.True(t, CategoryInverse.Inverse())
	assert.True(t, CategoryFutureReversed.Inverse())
	assert.False(t, CategoryLinear.Inverse())

	assert.True(t, CategorySpot.Spot())
	assert.True(t, CategorySpotLinear.Spot())
	assert.False(t, CategoryInverse.Spot())
}

func TestKeyString(t *testing.T) {
	k := Key{Symbol: "BTCUSDT", Market: "Binance"}
	assert.Equal(t, "BTCUSDT.Binance", k.String())
}

func TestCoef(t *testing.T) {
	assert.Equal(t, 1.0, Instrument{}.Coef())
	assert.Equal(t, 0.1, Instrument{ValueOfOneContract: 0.01, Multiplier: 10}.Coef())
}

func TestCatalogPutDefaults(t *testing.T) {
	c := NewCatalog()
	c.Put(Instrument{Symbol: "BTCUSDT", Market: "Binance"})

	ins, ok := c.Lookup(Key{Symbol: "BTCUSDT", Market: "Binance"})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ins.Ticker)
	assert.Equal(t, CategoryLinear, ins.Category)
}

func TestCatalogGetRegistersUnknown(t *testing.T) {
	c := NewCatalog()
	key := Key{Symbol: "XRPUSDT", Market: "Binance"}

	_, ok := c.Lookup(key)
	require.False(t, ok)

	ins := c.Get(key)
	assert.Equal(t, CategoryLinear, ins.Category)
	assert.Equal(t, int32(8), ins.Precision)
	assert.Equal(t, 1.0, ins.Coef())

	_, ok = c.Lookup(key)
	assert.True(t, ok)
}

func TestCatalogKeysSorted(t *testing.T) {
	c := NewCatalog()
	c.Put(Instrument{Symbol: "ETHUSDT", Market: "Binance"})
	c.Put(Instrument{Symbol: "BTCUSDT", Market: "Bybit"})
	c.Put(Instrument{Symbol: "BTCUSDT", Market: "Binance"})

	keys := c.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, Key{Symbol: "BTCUSDT", Market: "Binance"}, keys[0])
	assert.Equal(t, Key{Symbol: "BTCUSDT", Market: "Bybit"}, keys[1])
	assert.Equal(t, Key{Symbol: "ETHUSDT", Market: "Binance"}, keys[2])
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	body := `
instruments:
  - symbol: BTCUSDT
    market: Binance
    category: linear
    settl_currency: USDT
    precision: 3
    price_precision: 2
    min_order_qty: 0.001
  - symbol: BTCUSD
    market: Binance
    category: inverse
    settl_currency: BTC
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	ins, ok := c.Lookup(Key{Symbol: "BTCUSDT", Market: "Binance"})
	require.True(t, ok)
	assert.Equal(t, int32(3), ins.Precision)
	assert.Equal(t, 0.001, ins.MinOrderQty)

	inv, ok := c.Lookup(Key{Symbol: "BTCUSD", Market: "Binance"})
	require.True(t, ok)
	assert.True(t, inv.Category.Inverse())
}

func TestLoadCatalogRejectsMissingSymbol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  - market: Binance\n"), 0o644))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
