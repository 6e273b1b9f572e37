package ibkr

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
		// never seen before, assume still working
		"Telepathic": domain.StatusNew,
		"":           domain.StatusNew,
	}
	for in, want := range tests {
		require.Equal(t, want, mapOrderStatus(in, logger), "status %q", in)
	}
}

func TestVenueOrderType(t *testing.T) {
	got, err := venueOrderType(domain.Market)
	require.NoError(t, err)
	require.Equal(t, "MKT", got)

	got, err = venueOrderType(domain.TrailingStop)
	require.NoError(t, err)
	require.Equal(t, "TRAIL", got)

	_, err = venueOrderType("ICEBERG")
	require.True(t, errors.Is(err, broker.ErrInvalidOrder))
}

func TestVenueTimeInForceRejectsFOK(t *testing.T) {
	got, err := venueTimeInForce("")
	require.NoError(t, err)
	require.Equal(t, "GTC", got)

	_, err = venueTimeInForce(domain.FOK)
	require.True(t, errors.Is(err, broker.ErrInvalidOrder))
}

func TestVenueBarFallsBackToSmallest(t *testing.T) {
	logger := zap.NewNop()
	require.Equal(t, "1min", venueBar("1m", logger))
	require.Equal(t, "1h", venueBar("1h", logger))
	require.Equal(t, "1m", venueBar("1M", logger), "monthly bars use the venue's short form")
	require.Equal(t, "1min", venueBar("9h", logger))
}

func TestBaseSymbol(t *testing.T) {
	require.Equal(t, "AAPL", baseSymbol("AAPL-USD"))
	require.Equal(t, "SPY", baseSymbol("SPY-USD"))
	require.Equal(t, "265598", baseSymbol("265598"))
}
