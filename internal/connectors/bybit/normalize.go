package bybit

import (
	"strings"

	bybit "github.com/hirokisan/bybit/v2"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

// The spot connector carries plain market and limit orders; conditional and
// trailing types are not wired on this venue and fail validation before any
// network call.
var orderTypeTable = map[domain.OrderType]bybit.OrderType{
	domain.Market: bybit.OrderTypeMarket,
	domain.Limit:  bybit.OrderTypeLimit,
}

var orderTypeFromVenue = map[bybit.OrderType]domain.OrderType{
	bybit.OrderTypeMarket: domain.Market,
	bybit.OrderTypeLimit:  domain.Limit,
}

var timeInForceTable = map[domain.TimeInForce]string{
	domain.GTC: "GTC",
	domain.IOC: "IOC",
	domain.FOK: "FOK",
	"":         "GTC",
}

func venueOrderType(t domain.OrderType) (bybit.OrderType, error) {
	native, ok := orderTypeTable[t]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"order type "+string(t)+" is not supported by bybit spot")
	}
	return native, nil
}

func venueTimeInForce(tif domain.TimeInForce) (string, error) {
	native, ok := timeInForceTable[tif]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"time in force "+string(tif)+" is not supported by bybit")
	}
	return native, nil
}

// orderGone reports whether a cancel error is the venue's order-domain answer
// (already filled, cancelled or unknown order) rather than a failed call.
// Anything else, timeouts and connection errors included, means the order's
// fate is unknown and must surface to the caller.
func orderGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not exist") ||
		strings.Contains(msg, "already") ||
		strings.Contains(msg, "too late to cancel")
}

var statusTable = map[string]domain.OrderStatus{
	"Created":                 domain.StatusNew,
	"New":                     domain.StatusNew,
	"Untriggered":             domain.StatusNew,
	"Triggered":               domain.StatusNew,
	"Active":                  domain.StatusNew,
	"PartiallyFilled":         domain.StatusPartiallyFilled,
	"Filled":                  domain.StatusFilled,
	"Cancelled":               domain.StatusCanceled,
	"PartiallyFilledCanceled": domain.StatusCanceled,
	"Deactivated":             domain.StatusCanceled,
	"Rejected":                domain.StatusRejected,
	"Expired":                 domain.StatusExpired,
}

func mapOrderStatus(status string, logger *zap.Logger) domain.OrderStatus {
	if s, ok := statusTable[status]; ok {
		return s
	}
	logger.Warn("unmapped venue order status, assuming still working",
		zap.String("venue", venueName), zap.String("status", status))
	return domain.StatusNew
}

// V5 kline granularity: minutes as numbers, then D/W/M.
var intervalTable = map[string]string{
	"1m":  "1",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
	"1w":  "W",
	"1M":  "M",
}

func venueInterval(interval string, logger *zap.Logger) string {
	if native, ok := intervalTable[interval]; ok {
		return native
	}
	logger.Warn("unknown interval, falling back to smallest granularity",
		zap.String("venue", venueName), zap.String("interval", interval))
	return "1"
}
