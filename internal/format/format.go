// Package format renders prices and quantities at instrument precision for
// log lines and operator notifications.
package format

import (
	"strconv"

	"tmatic/internal/instrument"
)

// Price renders a price with the instrument's price precision, zero padded.
func Price(ins instrument.Instrument, price float64) string {
	return strconv.FormatFloat(price, 'f', int(ins.PricePrecision), 64)
}

// Volume renders a quantity with the instrument's quantity precision.
// Zero renders as "0" regardless of precision.
func Volume(ins instrument.Instrument, qty float64) string {
	if qty == 0 {
		return "0"
	}
	return strconv.FormatFloat(qty, 'f', int(ins.Precision), 64)
}
