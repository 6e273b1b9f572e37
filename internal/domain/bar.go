package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// FilterBars keeps only bars within [from, to] inclusive. Venue APIs may
// ignore the requested upper bound, so connectors always apply this before
// returning bars to the caller.
func FilterBars(bars []Bar, from, to time.Time) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
