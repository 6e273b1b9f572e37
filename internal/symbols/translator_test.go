package symbols

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslatorRoundTrip(t *testing.T) {
	xlat := New("testvenue", map[string]string{
		"BTC-USD":  "XXBTZUSD",
		"ETH-USD":  "XETHZUSD",
		"AAPL-USD": "265598",
	}, nil)

	for canonical, native := range map[string]string{
		"BTC-USD":  "XXBTZUSD",
		"ETH-USD":  "XETHZUSD",
		"AAPL-USD": "265598",
	} {
		require.Equal(t, native, xlat.ToVenue(canonical))
		require.Equal(t, canonical, xlat.FromVenue(native))
	}
}

func TestTranslatorPassThrough(t *testing.T) {
	xlat := New("testvenue", map[string]string{"BTC-USD": "XXBTZUSD"}, nil)

	// unmapped symbols pass through unchanged in both directions
	require.Equal(t, "DOGE-USD", xlat.ToVenue("DOGE-USD"))
	require.Equal(t, "XDGUSD", xlat.FromVenue("XDGUSD"))
}

func TestTranslatorKnown(t *testing.T) {
	xlat := New("testvenue", map[string]string{"BTC-USD": "XXBTZUSD"}, nil)

	require.True(t, xlat.Known("BTC-USD"))
	require.False(t, xlat.Known("DOGE-USD"))
}
