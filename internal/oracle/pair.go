package oracle

import (
	"errors"
	"fmt"
	"regexp"
)

// pairRegex matches: {BASE}/{QUOTE}
// Example: ETH/USD
var pairRegex = regexp.MustCompile(`^([A-Z0-9]{2,10})/([A-Z0-9]{2,10})$`)

var ErrInvalidPair = errors.New("oracle: invalid currency pair")

// Pair is a parsed price query.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// ParsePair parses and validates a price query such as "ETH/USD".
func ParsePair(s string) (Pair, error) {
	m := pairRegex.FindStringSubmatch(s)
	if m == nil {
		return Pair{}, fmt.Errorf("%w: %q (expected BASE/QUOTE)", ErrInvalidPair, s)
	}
	if m[1] == m[2] {
		return Pair{}, fmt.Errorf("%w: %q quotes itself", ErrInvalidPair, s)
	}
	return Pair{Base: m[1], Quote: m[2]}, nil
}
