package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketQuote is a point-in-time price snapshot. bid <= last <= ask is not
// enforced: some venues violate it under stress and the caller sees what the
// venue reported.
type MarketQuote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}
