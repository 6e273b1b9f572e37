package kraken

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKrakenPairRoundTrip(t *testing.T) {
	for canonical, native := range pairTable {
		require.Equal(t, native, KrakenPair(canonical))
		require.Equal(t, canonical, SymbolFromKrakenPair(native))
	}
}

func TestSymbolFromKrakenPairAltNames(t *testing.T) {
	// order descriptions use altnames instead of the long pair form
	require.Equal(t, "BTC-USD", SymbolFromKrakenPair("XBTUSD"))
	require.Equal(t, "BTC-USD", SymbolFromKrakenPair("XXBTZUSD"))
	require.Equal(t, "ETH-USD", SymbolFromKrakenPair("ETHUSD"))
}

func TestPairPassThrough(t *testing.T) {
	require.Equal(t, "SHIB-USD", KrakenPair("SHIB-USD"))
	require.Equal(t, "SHIBUSD", SymbolFromKrakenPair("SHIBUSD"))
}

func TestCanonicalAsset(t *testing.T) {
	tests := map[string]string{
		"XXBT": "BTC",
		"XBT":  "BTC",
		"XETH": "ETH",
		"ZUSD": "USD",
		"ZEUR": "EUR",
		"SOL":  "SOL",
		// unmapped codes pass through
		"NEWCOIN": "NEWCOIN",
	}
	for code, want := range tests {
		require.Equal(t, want, canonicalAsset(code))
	}
}
