package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies a held instrument.
type AssetType string

const (
	AssetEquity AssetType = "EQUITY"
	AssetCrypto AssetType = "CRYPTO"
	AssetOption AssetType = "OPTION"
	AssetFuture AssetType = "FUTURE"
	AssetForex  AssetType = "FOREX"
)

// Position is a held instrument, symbol already translated to canonical form.
// Quantity is signed: negative quantities represent short positions.
// Zero-quantity positions are excluded from listings by convention.
type Position struct {
	Symbol               string
	AssetType            AssetType
	Quantity             decimal.Decimal
	EntryPrice           decimal.Decimal
	MarkPrice            decimal.Decimal
	UnrealizedPnl        decimal.Decimal
	UnrealizedPnlPercent decimal.Decimal
	MarketValue          decimal.Decimal
	UpdatedAt            time.Time
}

// ComputePnl fills the derived fields from quantity, entry and mark price.
func (p *Position) ComputePnl() {
	p.MarketValue = p.Quantity.Mul(p.MarkPrice)
	p.UnrealizedPnl = p.MarkPrice.Sub(p.EntryPrice).Mul(p.Quantity)
	costBasis := p.EntryPrice.Mul(p.Quantity.Abs())
	if !costBasis.IsZero() {
		p.UnrealizedPnlPercent = p.UnrealizedPnl.Div(costBasis).Mul(decimal.NewFromInt(100))
	}
}
