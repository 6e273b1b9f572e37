// Package cache provides a small TTL cache for market quotes. The cache is a
// plain value owned by its caller, not shared process state; integrations
// that want quote reuse construct one and wrap their connector reads with it.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/quantport/brokerlink/internal/domain"
)

type entry struct {
	quote   domain.MarketQuote
	expires time.Time
}

// QuoteCache caches quotes per (venue, symbol) key for a fixed TTL.
type QuoteCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]entry
}

// Option configures a QuoteCache.
type Option func(*QuoteCache)

// WithClock substitutes the wall clock, used by tests to control expiry.
func WithClock(c clock.Clock) Option {
	return func(q *QuoteCache) {
		q.clock = c
	}
}

// NewQuoteCache builds a cache with the given TTL. A non-positive TTL
// disables caching entirely; Get then never hits.
func NewQuoteCache(ttl time.Duration, opts ...Option) *QuoteCache {
	q := &QuoteCache{
		ttl:     ttl,
		clock:   clock.New(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Get returns the cached quote for the key if it is still fresh.
func (q *QuoteCache) Get(venue, symbol string) (*domain.MarketQuote, bool) {
	if q.ttl <= 0 {
		return nil, false
	}
	q.mu.RLock()
	e, ok := q.entries[venue+"/"+symbol]
	q.mu.RUnlock()
	if !ok || q.clock.Now().After(e.expires) {
		return nil, false
	}
	quote := e.quote
	return &quote, true
}

// Put stores a quote, replacing any previous entry for the key.
func (q *QuoteCache) Put(venue string, quote domain.MarketQuote) {
	if q.ttl <= 0 {
		return
	}
	q.mu.Lock()
	q.entries[venue+"/"+quote.Symbol] = entry{
		quote:   quote,
		expires: q.clock.Now().Add(q.ttl),
	}
	q.mu.Unlock()
}

// Invalidate drops the entry for the key if present.
func (q *QuoteCache) Invalidate(venue, symbol string) {
	q.mu.Lock()
	delete(q.entries, venue+"/"+symbol)
	q.mu.Unlock()
}

// Len reports the number of stored entries, stale ones included.
func (q *QuoteCache) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}
