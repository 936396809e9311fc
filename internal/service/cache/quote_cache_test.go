package cache

import (
	"testing"
	"time"

	"aegisflow/internal/domain/models"
)

func quote(symbol string, bid float64) *models.Quote {
	return &models.Quote{Symbol: symbol, Bid: bid, Ask: bid + 0.0002, BidSize: 10, AskSize: 10, Timestamp: 1700000000123}
}

func TestQuoteCachePutGet(t *testing.T) {
	c := NewQuoteCache(time.Minute)
	c.Put(quote("EUR/USD", 1.0850))
	c.Put(quote("GBP/USD", 1.2701))

	got, ok := c.Get("EUR/USD")
	if !ok || got.Bid != 1.0850 {
		t.Fatalf("get: %v %v", got, ok)
	}
	if _, ok := c.Get("USD/JPY"); ok {
		t.Fatalf("unknown symbol must miss")
	}
}

func TestQuoteCacheLatestWins(t *testing.T) {
	c := NewQuoteCache(time.Minute)
	c.Put(quote("EUR/USD", 1.0850))
	c.Put(quote("EUR/USD", 1.0861))

	got, ok := c.Get("EUR/USD")
	if !ok || got.Bid != 1.0861 {
		t.Fatalf("expected the latest quote, got %v", got)
	}
}

func TestQuoteCacheExpiry(t *testing.T) {
	c := NewQuoteCache(10 * time.Millisecond)
	c.Put(quote("EUR/USD", 1.0850))
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("EUR/USD"); ok {
		t.Fatalf("expired entry must miss")
	}
}

func TestQuoteCacheNoTTL(t *testing.T) {
	c := NewQuoteCache(0)
	c.Put(quote("EUR/USD", 1.0850))
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("EUR/USD"); !ok {
		t.Fatalf("ttl 0 entries must never expire")
	}
}

func TestQuoteCacheIgnoresNil(t *testing.T) {
	c := NewQuoteCache(time.Minute)
	c.Put(nil) // must not panic
}
