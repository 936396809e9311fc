package repository

import (
	"context"

	"aegisflow/internal/domain/models"
)

// MarketStream is the single upstream market-data connection.
// Connect, Authenticate and Subscribe are the setup sequence; Read streams
// normalized quotes until the transport fails; Reconnect runs the whole cycle
// again after the configured backoff.
type MarketStream interface {
	Connect(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Scorer is the opaque classification model. It maps a feature vector to a
// class index and a per-class probability distribution ordered
// NEUTRAL, BUY, SELL.
type Scorer interface {
	Score(features models.FeatureVector) (class int, proba []float64, err error)
}

// SentimentReader exposes the current news sentiment snapshot to inference.
type SentimentReader interface {
	Snapshot() models.SentimentContext
}

// Publisher publishes quotes to a message broker for downstream analytics.
type Publisher interface {
	Publish(ctx context.Context, q *models.Quote) error
	PublishBatch(ctx context.Context, quotes []*models.Quote) error
	Close() error
}

// Storage archives quotes in a columnar store.
type Storage interface {
	Store(ctx context.Context, q *models.Quote) error
	StoreBatch(ctx context.Context, quotes []*models.Quote) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters and gauges.
type Metrics interface {
	RecordQuote(symbol string)
	RecordSignal(label string)
	RecordError(kind string)
	RecordLastQuote(symbol string, bid, ask float64)
	RecordLatency(op string, seconds float64)
	RecordReconnect()
	SetSubscribers(feed string, n int)
	RecordBroadcastDrop(feed string)
}
