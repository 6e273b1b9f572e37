// Package domain defines the wire types exchanged between connectors and
// their callers. These are plain request/response values owned by the caller;
// the layer keeps no state of its own besides a connector's connection status.
package domain

import (
	"fmt"
	"strings"
)

// Pair is the canonical representation of a tradable instrument,
// independent of any venue's native symbology.
type Pair struct {
	// Base asset symbol, e.g. BTC.
	Base string
	// Quote asset symbol, e.g. USD.
	Quote string
}

// Symbol renders the pair in canonical BASE-QUOTE form, e.g. "BTC-USD".
func (p Pair) Symbol() string {
	return p.Base + "-" + p.Quote
}

func (p Pair) String() string {
	return p.Symbol()
}

// ParseSymbol splits a canonical BASE-QUOTE symbol into a Pair.
func ParseSymbol(symbol string) (Pair, error) {
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid canonical symbol %q, expected BASE-QUOTE", symbol)
	}
	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}
