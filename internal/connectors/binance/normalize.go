package binance

import (
	"strings"

	binance "github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

// Spot vocabulary: stop orders are STOP_LOSS / STOP_LOSS_LIMIT, trailing
// stops do not exist as a standalone type and fail validation.
var orderTypeTable = map[domain.OrderType]binance.OrderType{
	domain.Market:    binance.OrderTypeMarket,
	domain.Limit:     binance.OrderTypeLimit,
	domain.Stop:      binance.OrderTypeStopLoss,
	domain.StopLimit: binance.OrderTypeStopLossLimit,
}

var orderTypeFromVenue = map[binance.OrderType]domain.OrderType{
	binance.OrderTypeMarket:        domain.Market,
	binance.OrderTypeLimit:         domain.Limit,
	binance.OrderTypeStopLoss:      domain.Stop,
	binance.OrderTypeStopLossLimit: domain.StopLimit,
}

var timeInForceTable = map[domain.TimeInForce]binance.TimeInForceType{
	domain.GTC: binance.TimeInForceTypeGTC,
	domain.IOC: binance.TimeInForceTypeIOC,
	domain.FOK: binance.TimeInForceTypeFOK,
	"":         binance.TimeInForceTypeGTC,
}

func venueOrderType(t domain.OrderType) (binance.OrderType, error) {
	native, ok := orderTypeTable[t]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"order type "+string(t)+" is not supported by binance spot")
	}
	return native, nil
}

func venueTimeInForce(tif domain.TimeInForce) (binance.TimeInForceType, error) {
	native, ok := timeInForceTable[tif]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"time in force "+string(tif)+" is not supported by binance")
	}
	return native, nil
}

var statusTable = map[string]domain.OrderStatus{
	"NEW":              domain.StatusNew,
	"PENDING_NEW":      domain.StatusNew,
	"PENDING_CANCEL":   domain.StatusNew,
	"PARTIALLY_FILLED": domain.StatusPartiallyFilled,
	"FILLED":           domain.StatusFilled,
	"CANCELED":         domain.StatusCanceled,
	"REJECTED":         domain.StatusRejected,
	"EXPIRED":          domain.StatusExpired,
	"EXPIRED_IN_MATCH": domain.StatusExpired,
}

func mapOrderStatus(status string, logger *zap.Logger) domain.OrderStatus {
	if s, ok := statusTable[status]; ok {
		return s
	}
	logger.Warn("unmapped venue order status, assuming still working",
		zap.String("venue", venueName), zap.String("status", status))
	return domain.StatusNew
}

// Binance interval strings match the canonical vocabulary one to one.
var intervalTable = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "4h": "4h", "1d": "1d", "1w": "1w", "1M": "1M",
}

func venueInterval(interval string, logger *zap.Logger) string {
	if native, ok := intervalTable[interval]; ok {
		return native
	}
	logger.Warn("unknown interval, falling back to smallest granularity",
		zap.String("venue", venueName), zap.String("interval", interval))
	return "1m"
}

// nativeSymbol concatenates the canonical pair; Binance has no separator.
// Raw venue symbols without a dash pass through untouched.
func nativeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "")
}
