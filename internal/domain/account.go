package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountInfo is a point-in-time snapshot of a venue account. Positions are
// always freshly fetched, never served from a cache.
type AccountInfo struct {
	AccountID       string
	Balance         decimal.Decimal
	Currency        string
	Equity          decimal.Decimal
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal
	Positions       []Position
	UpdatedAt       time.Time
}
