package ibkr

import (
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

var orderTypeTable = map[domain.OrderType]string{
	domain.Market:       "MKT",
	domain.Limit:        "LMT",
	domain.Stop:         "STP",
	domain.StopLimit:    "STOP_LIMIT",
	domain.TrailingStop: "TRAIL",
}

var orderTypeFromVenue = map[string]domain.OrderType{
	"MKT":        domain.Market,
	"MARKET":     domain.Market,
	"Market":     domain.Market,
	"LMT":        domain.Limit,
	"LIMIT":      domain.Limit,
	"Limit":      domain.Limit,
	"STP":        domain.Stop,
	"STOP":       domain.Stop,
	"Stop":       domain.Stop,
	"STOP_LIMIT": domain.StopLimit,
	"StopLimit":  domain.StopLimit,
	"TRAIL":      domain.TrailingStop,
}

// IBKR's client portal has no fill-or-kill; unmapped combinations fail
// validation before any network call.
var timeInForceTable = map[domain.TimeInForce]string{
	domain.GTC: "GTC",
	domain.IOC: "IOC",
	"":         "GTC",
}

func venueOrderType(t domain.OrderType) (string, error) {
	native, ok := orderTypeTable[t]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"order type "+string(t)+" is not supported by ibkr")
	}
	return native, nil
}

func venueTimeInForce(tif domain.TimeInForce) (string, error) {
	native, ok := timeInForceTable[tif]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"time in force "+string(tif)+" is not supported by ibkr")
	}
	return native, nil
}

var statusTable = map[string]domain.OrderStatus{
	"PendingSubmit":     domain.StatusNew,
	"PreSubmitted":      domain.StatusNew,
	"Submitted":         domain.StatusNew,
	"PendingCancel":     domain.StatusNew,
	"PartiallyExecuted": domain.StatusPartiallyFilled,
	"PartiallyFilled":   domain.StatusPartiallyFilled,
	"Filled":            domain.StatusFilled,
	"Cancelled":         domain.StatusCanceled,
	"Canceled":          domain.StatusCanceled,
	"Inactive":          domain.StatusRejected,
	"Rejected":          domain.StatusRejected,
	"Expired":           domain.StatusExpired,
}

// mapOrderStatus maps an IBKR order status onto the canonical set. Unknown
// statuses map to NEW as a conservative "assume still working" fallback and
// are logged for later table extension.
func mapOrderStatus(status string, logger *zap.Logger) domain.OrderStatus {
	if s, ok := statusTable[status]; ok {
		return s
	}
	logger.Warn("unmapped venue order status, assuming still working",
		zap.String("venue", venueName), zap.String("status", status))
	return domain.StatusNew
}

var barTable = map[string]string{
	"1m":  "1min",
	"5m":  "5min",
	"15m": "15min",
	"30m": "30min",
	"1h":  "1h",
	"4h":  "4h",
	"1d":  "1d",
	"1w":  "1w",
	"1M":  "1m",
}

// venueBar maps a canonical interval to an IBKR bar size, falling back to
// the smallest granularity for unknown inputs (logged, never an error).
func venueBar(interval string, logger *zap.Logger) string {
	if bar, ok := barTable[interval]; ok {
		return bar
	}
	logger.Warn("unknown interval, falling back to smallest granularity",
		zap.String("venue", venueName), zap.String("interval", interval))
	return "1min"
}
