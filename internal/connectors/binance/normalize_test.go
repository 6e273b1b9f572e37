package binance

import (
	"testing"

	binance "github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

func TestVenueOrderType(t *testing.T) {
	got, err := venueOrderType(domain.Stop)
	require.NoError(t, err)
	require.Equal(t, binance.OrderTypeStopLoss, got)

	// the spot API has no standalone trailing stop
	_, err = venueOrderType(domain.TrailingStop)
	require.True(t, errors.Is(err, broker.ErrInvalidOrder))
}

func TestVenueTimeInForce(t *testing.T) {
	got, err := venueTimeInForce(domain.FOK)
	require.NoError(t, err)
	require.Equal(t, binance.TimeInForceTypeFOK, got)

	got, err = venueTimeInForce("")
	require.NoError(t, err)
	require.Equal(t, binance.TimeInForceTypeGTC, got)
}

func TestMapOrderStatus(t *testing.T) {
	logger := zap.NewNop()
	require.Equal(t, domain.StatusExpired, mapOrderStatus("EXPIRED_IN_MATCH", logger))
	require.Equal(t, domain.StatusNew, mapOrderStatus("PENDING_CANCEL", logger))
	require.Equal(t, domain.StatusNew, mapOrderStatus("SOMETHING_ELSE", logger))
}

func TestVenueIntervalFallback(t *testing.T) {
	logger := zap.NewNop()
	require.Equal(t, "4h", venueInterval("4h", logger))
	require.Equal(t, "1m", venueInterval("2h", logger))
}

func TestNativeSymbol(t *testing.T) {
	require.Equal(t, "BTCUSDT", nativeSymbol("BTC-USDT"))
	require.Equal(t, "ETHBTC", nativeSymbol("ETH-BTC"))
	require.Equal(t, "BTCUSDT", nativeSymbol("BTCUSDT"))
}
