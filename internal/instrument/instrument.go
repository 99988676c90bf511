package instrument

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category is the settlement convention of an instrument. It decides which of
// the three value formulas applies when a fill or funding payment is booked.
type Category string

const (
	CategoryLinear         Category = "linear"
	CategoryInverse        Category = "inverse"
	CategoryFutureReversed Category = "future reversed"
	CategorySpot           Category = "spot"
	CategorySpotLinear     Category = "spot linear"
	CategoryOption         Category = "option"
	CategoryQuanto         Category = "quanto"
)

// Inverse reports whether trade value is computed as qty/price.
func (c Category) Inverse() bool {
	return c == CategoryInverse || c == CategoryFutureReversed
}

// Spot reports whether the category carries no realized trade value.
func (c Category) Spot() bool {
	return c == CategorySpot || c == CategorySpotLinear
}

// Key identifies an instrument within one exchange connection.
type Key struct {
	Symbol string
	Market string
}

func (k Key) String() string { return k.Symbol + "." + k.Market }

// Instrument carries the static properties the reconciliation core needs:
// precisions for exact rounding, the contract multiplier for value scaling and
// the minimum order size used as the default position limit.
type Instrument struct {
	Symbol             string   `yaml:"symbol"`
	Ticker             string   `yaml:"ticker"`
	Market             string   `yaml:"market"`
	Category           Category `yaml:"category"`
	SettlCurrency      string   `yaml:"settl_currency"`
	Precision          int32    `yaml:"precision"`
	PricePrecision     int32    `yaml:"price_precision"`
	Multiplier         float64  `yaml:"multiplier"`
	ValueOfOneContract float64  `yaml:"value_of_one_contract"`
	MinOrderQty        float64  `yaml:"min_order_qty"`
}

func (ins Instrument) Key() Key { return Key{Symbol: ins.Symbol, Market: ins.Market} }

// Coef is the common scaling factor applied to every computed value.
func (ins Instrument) Coef() float64 {
	coef := ins.ValueOfOneContract * ins.Multiplier
	if coef == 0 {
		return 1
	}
	return coef
}

// Catalog is a registry of instruments, safe for concurrent use. Unknown
// symbols are registered on first sight with conservative defaults so that an
// event for a never-configured instrument is still bookable.
type Catalog struct {
	mu   sync.RWMutex
	byID map[Key]Instrument
}

func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[Key]Instrument)}
}

// LoadCatalog reads instrument definitions from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instrument catalog: %w", err)
	}
	var doc struct {
		Instruments []Instrument `yaml:"instruments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing instrument catalog: %w", err)
	}
	c := NewCatalog()
	for _, ins := range doc.Instruments {
		if ins.Symbol == "" {
			return nil, fmt.Errorf("instrument catalog: entry without symbol")
		}
		c.Put(ins)
	}
	return c, nil
}

func (c *Catalog) Put(ins Instrument) {
	if ins.Ticker == "" {
		ins.Ticker = ins.Symbol
	}
	if ins.Category == "" {
		ins.Category = CategoryLinear
	}
	c.mu.Lock()
	c.byID[ins.Key()] = ins
	c.mu.Unlock()
}

// Get returns the instrument for key, registering a default entry when the
// key has never been seen.
func (c *Catalog) Get(key Key) Instrument {
	c.mu.RLock()
	ins, ok := c.byID[key]
	c.mu.RUnlock()
	if ok {
		return ins
	}
	ins = Instrument{
		Symbol:             key.Symbol,
		Ticker:             key.Symbol,
		Market:             key.Market,
		Category:           CategoryLinear,
		Precision:          8,
		PricePrecision:     8,
		Multiplier:         1,
		ValueOfOneContract: 1,
	}
	c.mu.Lock()
	if cur, ok := c.byID[key]; ok {
		ins = cur
	} else {
		c.byID[key] = ins
	}
	c.mu.Unlock()
	return ins
}

// Lookup returns the instrument without registering defaults.
func (c *Catalog) Lookup(key Key) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ins, ok := c.byID[key]
	return ins, ok
}

// Keys returns all registered keys sorted by symbol then market.
func (c *Catalog) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.byID))
	for k := range c.byID {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Market < keys[j].Market
	})
	return keys
}
