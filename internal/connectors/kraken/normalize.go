package kraken

import (
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

var orderTypeTable = map[domain.OrderType]string{
	domain.Market:       "market",
	domain.Limit:        "limit",
	domain.Stop:         "stop-loss",
	domain.StopLimit:    "stop-loss-limit",
	domain.TrailingStop: "trailing-stop",
}

var orderTypeFromVenue = func() map[string]domain.OrderType {
	m := make(map[string]domain.OrderType, len(orderTypeTable))
	for canonical, native := range orderTypeTable {
		m[native] = canonical
	}
	return m
}()

// Kraken has no fill-or-kill; an unmapped combination fails validation
// before any network call.
var timeInForceTable = map[domain.TimeInForce]string{
	domain.GTC: "GTC",
	domain.IOC: "IOC",
	"":         "GTC",
}

// venueOrderType maps the canonical order type to Kraken's vocabulary.
func venueOrderType(t domain.OrderType) (string, error) {
	native, ok := orderTypeTable[t]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"order type "+string(t)+" is not supported by kraken")
	}
	return native, nil
}

// venueTimeInForce maps the canonical TIF to Kraken's vocabulary.
func venueTimeInForce(tif domain.TimeInForce) (string, error) {
	native, ok := timeInForceTable[tif]
	if !ok {
		return "", broker.NewVenueError(venueName, "place order", broker.ErrInvalidOrder, 0,
			"time in force "+string(tif)+" is not supported by kraken")
	}
	return native, nil
}

var statusTable = map[string]domain.OrderStatus{
	"pending":  domain.StatusNew,
	"open":     domain.StatusNew,
	"closed":   domain.StatusFilled,
	"canceled": domain.StatusCanceled,
	"expired":  domain.StatusExpired,
}

// mapOrderStatus maps a Kraken order status onto the canonical set. Unknown
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

// intervalTable maps canonical interval strings to Kraken OHLC granularity
// in minutes.
var intervalTable = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
	"1w":  10080,
	"1M":  21600,
}

// venueInterval maps a canonical interval, falling back to the smallest
// supported granularity for unknown inputs. The fallback is logged so the
// surprise is at least observable.
func venueInterval(interval string, logger *zap.Logger) int {
	if m, ok := intervalTable[interval]; ok {
		return m
	}
	logger.Warn("unknown interval, falling back to smallest granularity",
		zap.String("venue", venueName), zap.String("interval", interval))
	return 1
}
