package kraken

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

func TestMapOrderStatusTotal(t *testing.T) {
	logger := zap.NewNop()
	tests := map[string]domain.OrderStatus{
		"pending":  domain.StatusNew,
		"open":     domain.StatusNew,
		"closed":   domain.StatusFilled,
		"canceled": domain.StatusCanceled,
		"expired":  domain.StatusExpired,
		// never seen before, assume still working
		"warming-up": domain.StatusNew,
		"":           domain.StatusNew,
	}
	for in, want := range tests {
		require.Equal(t, want, mapOrderStatus(in, logger), "status %q", in)
	}
}

func TestVenueOrderType(t *testing.T) {
	for canonical, native := range map[domain.OrderType]string{
		domain.Market:       "market",
		domain.Limit:        "limit",
		domain.Stop:         "stop-loss",
		domain.StopLimit:    "stop-loss-limit",
		domain.TrailingStop: "trailing-stop",
	} {
		got, err := venueOrderType(canonical)
		require.NoError(t, err)
		require.Equal(t, native, got)
	}

	_, err := venueOrderType("ICEBERG")
	require.True(t, errors.Is(err, broker.ErrInvalidOrder))
}

func TestVenueTimeInForceRejectsFOK(t *testing.T) {
	got, err := venueTimeInForce("")
	require.NoError(t, err)
	require.Equal(t, "GTC", got, "empty TIF defaults to GTC")

	_, err = venueTimeInForce(domain.FOK)
	require.True(t, errors.Is(err, broker.ErrInvalidOrder))
}

func TestVenueIntervalFallsBackToSmallest(t *testing.T) {
	logger := zap.NewNop()
	require.Equal(t, 1, venueInterval("1m", logger))
	require.Equal(t, 60, venueInterval("1h", logger))
	require.Equal(t, 21600, venueInterval("1M", logger))
	require.Equal(t, 1, venueInterval("7h", logger))
	require.Equal(t, 1, venueInterval("", logger))
}
