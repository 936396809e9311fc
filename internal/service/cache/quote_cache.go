package cache

import (
	"sync"
	"time"

	"aegisflow/internal/domain/models"
)

type entry struct {
	q   *models.Quote
	exp time.Time
}

// QuoteCache keeps the last normalized quote per symbol with a TTL, so the
// REST surface can serve snapshots without touching the live feed.
type QuoteCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
}

// NewQuoteCache creates a cache; ttl <= 0 means entries never expire.
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	return &QuoteCache{m: make(map[string]entry), ttl: ttl}
}

// Put stores the latest quote for its symbol.
func (c *QuoteCache) Put(q *models.Quote) {
	if q == nil {
		return
	}
	var exp time.Time
	if c.ttl > 0 {
		exp = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[q.Symbol] = entry{q: q, exp: exp}
	c.mu.Unlock()
}

// Get returns the latest unexpired quote for a symbol.
func (c *QuoteCache) Get(symbol string) (*models.Quote, bool) {
	c.mu.RLock()
	e, ok := c.m[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, symbol)
		c.mu.Unlock()
		return nil, false
	}
	return e.q, true
}
