package connectors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/domain"
)

func TestNewDispatchesKnownVenues(t *testing.T) {
	cfg, err := config.Get("")
	require.NoError(t, err)

	for _, venue := range Venues() {
		conn, err := New(venue, cfg, nil)
		require.NoError(t, err, "venue %s", venue)
		require.Equal(t, venue, conn.Name())
		require.Equal(t, domain.Disconnected, conn.Status(), "connectors start disconnected")
	}
}

func TestNewRejectsUnknownVenue(t *testing.T) {
	cfg, err := config.Get("")
	require.NoError(t, err)

	_, err = New("etrade", cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "etrade")
}

func TestVenuesStableOrder(t *testing.T) {
	require.Equal(t, []string{"binance", "bybit", "ibkr", "kraken"}, Venues())
}
