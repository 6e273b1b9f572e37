package cache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quantport/brokerlink/internal/domain"
)

func quote(symbol string, last int64) domain.MarketQuote {
	return domain.MarketQuote{Symbol: symbol, Last: decimal.NewFromInt(last)}
}

func TestQuoteCacheHitUntilTTL(t *testing.T) {
	mock := clock.NewMock()
	c := NewQuoteCache(5*time.Second, WithClock(mock))

	c.Put("kraken", quote("BTC-USD", 50000))

	got, ok := c.Get("kraken", "BTC-USD")
	require.True(t, ok)
	require.True(t, got.Last.Equal(decimal.NewFromInt(50000)))

	mock.Add(5 * time.Second)
	_, ok = c.Get("kraken", "BTC-USD")
	require.True(t, ok, "boundary instant is still fresh")

	mock.Add(time.Millisecond)
	_, ok = c.Get("kraken", "BTC-USD")
	require.False(t, ok, "expired after TTL")
}

func TestQuoteCacheKeysByVenue(t *testing.T) {
	c := NewQuoteCache(time.Minute)

	c.Put("kraken", quote("BTC-USD", 50000))
	c.Put("binance", quote("BTC-USD", 50100))

	k, ok := c.Get("kraken", "BTC-USD")
	require.True(t, ok)
	require.True(t, k.Last.Equal(decimal.NewFromInt(50000)))

	b, ok := c.Get("binance", "BTC-USD")
	require.True(t, ok)
	require.True(t, b.Last.Equal(decimal.NewFromInt(50100)))

	_, ok = c.Get("ibkr", "BTC-USD")
	require.False(t, ok)
}

func TestQuoteCacheInvalidate(t *testing.T) {
	c := NewQuoteCache(time.Minute)
	c.Put("kraken", quote("BTC-USD", 50000))
	require.Equal(t, 1, c.Len())

	c.Invalidate("kraken", "BTC-USD")
	_, ok := c.Get("kraken", "BTC-USD")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestQuoteCacheDisabledByZeroTTL(t *testing.T) {
	c := NewQuoteCache(0)
	c.Put("kraken", quote("BTC-USD", 50000))
	_, ok := c.Get("kraken", "BTC-USD")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestQuoteCacheReturnsCopy(t *testing.T) {
	c := NewQuoteCache(time.Minute)
	c.Put("kraken", quote("BTC-USD", 50000))

	got, ok := c.Get("kraken", "BTC-USD")
	require.True(t, ok)
	got.Symbol = "mutated"

	again, ok := c.Get("kraken", "BTC-USD")
	require.True(t, ok)
	require.Equal(t, "BTC-USD", again.Symbol)
}
