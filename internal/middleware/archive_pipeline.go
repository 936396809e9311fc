package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aegisflow/internal/domain/models"
	domrepo "aegisflow/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, q *models.Quote) error
}

// BatchProc is implemented by processors that can archive several quotes in
// one backend call; the flusher prefers it when draining the buffer.
type BatchProc interface {
	ProcessBatch(ctx context.Context, quotes []*models.Quote) error
}

// flushBatchSize caps how many buffered quotes one flush drains.
const flushBatchSize = 64

// ArchivePipeline sits between the feed and the archive backend. It validates,
// throttles per symbol, and buffers quotes when the backend is unavailable so
// an archive outage never slows the live fan-out.
type ArchivePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Quote
	stopCh  chan struct{}
	started bool

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*ArchivePipeline)

// WithMaxRPS sets the max archived quotes per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when the backend is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewArchivePipeline creates a new pipeline.
func NewArchivePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ArchivePipeline {
	p := &ArchivePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Quote, p.bufSize)
	return p
}

// Start launches background flushing of buffered quotes.
func (p *ArchivePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case q := <-p.bufCh:
				if q == nil {
					continue
				}
				batch := p.drainBatch(q)
				if err := p.flush(ctx, batch); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					p.requeue(batch)
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// drainBatch collects whatever else is already buffered, up to the batch cap.
func (p *ArchivePipeline) drainBatch(first *models.Quote) []*models.Quote {
	batch := append(make([]*models.Quote, 0, flushBatchSize), first)
	for len(batch) < flushBatchSize {
		select {
		case q := <-p.bufCh:
			if q != nil {
				batch = append(batch, q)
			}
		default:
			return batch
		}
	}
	return batch
}

// flush archives one drained batch, in a single backend call when the
// processor supports it.
func (p *ArchivePipeline) flush(ctx context.Context, batch []*models.Quote) error {
	if bp, ok := p.proc.(BatchProc); ok && len(batch) > 1 {
		return bp.ProcessBatch(ctx, batch)
	}
	for _, q := range batch {
		if err := p.proc.Process(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// requeue puts a failed batch back if there is space; drops otherwise.
func (p *ArchivePipeline) requeue(batch []*models.Quote) {
	for _, q := range batch {
		select {
		case p.bufCh <- q:
		default:
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
}

// Stop stops the background flushing.
func (p *ArchivePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a quote downstream, buffering on
// errors.
func (p *ArchivePipeline) Process(ctx context.Context, q *models.Quote) error {
	start := time.Now()
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(q.Symbol, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- q:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateQuote(q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote nil")
	}
	if !strings.Contains(q.Symbol, "/") {
		return fmt.Errorf("symbol not canonical: %q", q.Symbol)
	}
	if q.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if q.BidSize < 0 || q.AskSize < 0 {
		return fmt.Errorf("negative size")
	}
	return nil
}

func (p *ArchivePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
