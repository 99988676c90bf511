package event

import (
	"strconv"
	"strings"
)

// A client order id is "{sequence}.{strategy}". The suffix after the first
// dot names the owning strategy; an id with no recognizable suffix belongs to
// no strategy and the order is attributed to the instrument symbol instead.

// SplitClOrdID returns the numeric prefix and the strategy suffix. ok is
// false when the id carries no strategy suffix.
func SplitClOrdID(clOrdID string) (clientID int64, strategy string, ok bool) {
	dot := strings.IndexByte(clOrdID, '.')
	if dot < 0 {
		id, err := strconv.ParseInt(clOrdID, 10, 64)
		if err != nil {
			return 0, "", false
		}
		return id, "", false
	}
	id, err := strconv.ParseInt(clOrdID[:dot], 10, 64)
	if err != nil {
		return 0, clOrdID[dot+1:], true
	}
	return id, clOrdID[dot+1:], true
}

// FormatClOrdID builds "{sequence}.{strategy}".
func FormatClOrdID(sequence int64, strategy string) string {
	return strconv.FormatInt(sequence, 10) + "." + strategy
}
