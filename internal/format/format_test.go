package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tmatic/internal/instrument"
)

func TestPrice(t *testing.T) {
	ins := instrument.Instrument{PricePrecision: 2}
	assert.Equal(t, "20000.00", Price(ins, 20000))
	assert.Equal(t, "0.10", Price(ins, 0.1))
	assert.Equal(t, "-5.50", Price(ins, -5.5))
}

func TestVolume(t *testing.T) {
	ins := instrument.Instrument{Precision: 3}
	assert.Equal(t, "0.500", Volume(ins, 0.5))
	assert.Equal(t, "-1.250", Volume(ins, -1.25))
	assert.Equal(t, "0", Volume(ins, 0))
}
