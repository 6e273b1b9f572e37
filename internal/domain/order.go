package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType is the canonical order type vocabulary. Connectors map these onto
// venue vocabularies; an unmappable type fails validation before any network
// call is made.
type OrderType string

const (
	Market       OrderType = "MARKET"
	Limit        OrderType = "LIMIT"
	Stop         OrderType = "STOP"
	StopLimit    OrderType = "STOP_LIMIT"
	TrailingStop OrderType = "TRAILING_STOP"
)

// TimeInForce is the order lifetime policy.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderStatus is the closed canonical status set. Every venue status maps
// onto exactly one of these; genuinely unrecognized venue statuses map to
// StatusNew as a conservative "assume still working" fallback.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// OrderRequest is a caller's intent to trade. Symbol is canonical BASE-QUOTE.
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
	// ClientOrderID is reused on retry so a slow-but-successful first
	// attempt cannot result in a duplicate submission.
	ClientOrderID string
}

// Validate enforces type-specific constraints. It runs before any network
// call so invalid orders fail cheaply.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return errors.New("order symbol is required")
	}
	if r.Side != Buy && r.Side != Sell {
		return errors.Errorf("invalid order side %q", r.Side)
	}
	if r.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.New("order quantity must be greater than zero")
	}
	switch r.Type {
	case Market:
	case Limit:
		if r.Price.LessThanOrEqual(decimal.Zero) {
			return errors.New("limit order requires a positive price")
		}
	case Stop:
		if r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("stop order requires a positive stop price")
		}
	case StopLimit:
		if r.Price.LessThanOrEqual(decimal.Zero) {
			return errors.New("stop-limit order requires a positive price")
		}
		if r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("stop-limit order requires a positive stop price")
		}
	case TrailingStop:
		if r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("trailing-stop order requires a positive trail offset")
		}
	default:
		return errors.Errorf("invalid order type %q", r.Type)
	}
	switch r.TimeInForce {
	case GTC, IOC, FOK, "":
	default:
		return errors.Errorf("invalid time in force %q", r.TimeInForce)
	}
	return nil
}

// OrderResponse is the normalized state of an order as last seen at the venue.
// Once the order is terminal, FilledQuantity + RemainingQuantity == Quantity.
type OrderResponse struct {
	OrderID           string
	Symbol            string
	Side              OrderSide
	Type              OrderType
	Quantity          decimal.Decimal
	Price             decimal.Decimal
	StopPrice         decimal.Decimal
	TimeInForce       TimeInForce
	ClientOrderID     string
	Status            OrderStatus
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
