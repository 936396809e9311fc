package usecase

import (
	"context"
	"fmt"
	"time"

	"aegisflow/internal/domain/models"
	drepo "aegisflow/internal/domain/repository"
)

// Archive backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// ArchiveProcessor routes quotes to the configured archive backend. Archiving
// is best-effort side storage; failures never touch the live fan-out path.
type ArchiveProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewArchiveProcessor creates a processor for the given backend.
func NewArchiveProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *ArchiveProcessor {
	return &ArchiveProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process archives a single quote.
func (p *ArchiveProcessor) Process(ctx context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendNone:
		return nil
	case BackendKafka:
		err = p.pub.Publish(ctx, q)
	case BackendClickHouse:
		err = p.store.Store(ctx, q)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("archive")
		return fmt.Errorf("archive quote: %w", err)
	}
	p.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

// ProcessBatch archives multiple quotes in one call.
func (p *ArchiveProcessor) ProcessBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendNone:
		return nil
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, quotes)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, quotes)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}
	p.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *ArchiveProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
