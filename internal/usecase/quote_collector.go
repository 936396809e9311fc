package usecase

import (
	"context"
	"errors"

	"aegisflow/internal/domain/models"
	drepo "aegisflow/internal/domain/repository"
	mid "aegisflow/internal/middleware"
	"aegisflow/internal/service/cache"
	"aegisflow/internal/service/hub"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
)

// QuoteCollector owns the upstream feed lifecycle: it drives the
// connect/auth/subscribe/stream cycle, reconnecting forever on any transport
// failure, and fans every normalized quote out to the distribution hub, the
// signal stream, and the optional archive pipeline. None of those consumers
// can block the read loop.
type QuoteCollector struct {
	stream  drepo.MarketStream
	hub     *hub.Hub
	signals *SignalStream
	quotes  *cache.QuoteCache
	pipe    *mid.ArchivePipeline
	logger  *applogger.Logger
	metrics drepo.Metrics

	done chan struct{}
}

// NewQuoteCollector creates a new QuoteCollector. pipe may be nil when
// archiving is disabled.
func NewQuoteCollector(
	stream drepo.MarketStream,
	h *hub.Hub,
	signals *SignalStream,
	quotes *cache.QuoteCache,
	pipe *mid.ArchivePipeline,
	l *applogger.Logger,
	m drepo.Metrics,
) *QuoteCollector {
	return &QuoteCollector{
		stream:  stream,
		hub:     h,
		signals: signals,
		quotes:  quotes,
		pipe:    pipe,
		logger:  l,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// IsConnected reports whether the upstream feed is currently connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start launches the feed loop. It returns immediately; connection setup
// failures feed the reconnect cycle rather than surfacing here.
func (c *QuoteCollector) Start(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	c.signals.Start(ctx)
	go c.run(ctx)
	return nil
}

// run is the connection state machine: establish, stream, and on any failure
// re-enter the cycle after the stream's fixed backoff. The loop is iterative
// on purpose; sustained failures must not grow the stack.
func (c *QuoteCollector) run(ctx context.Context) {
	defer close(c.done)
	defer func() { _ = c.stream.Close() }()

	err := c.establish(ctx)
	for ctx.Err() == nil {
		if err != nil {
			c.logger.Warn("feed: connection cycle failed", applogger.Error(err))
			c.metrics.RecordReconnect()
			err = c.stream.Reconnect(ctx)
			continue
		}
		quoteCh, errCh := c.stream.Read(ctx)
		err = c.consume(ctx, quoteCh, errCh)
	}
}

// establish runs the initial connect/auth/subscribe sequence. The transport is
// released on every partial failure.
func (c *QuoteCollector) establish(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Authenticate(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	return nil
}

// consume drains the stream until cancellation (returns nil) or a transport
// error (returned for the reconnect cycle).
func (c *QuoteCollector) consume(ctx context.Context, quoteCh <-chan *models.Quote, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if !ok || err == nil {
				return errors.New("stream error channel closed")
			}
			c.metrics.RecordError("stream")
			return err
		case q, ok := <-quoteCh:
			if !ok {
				return errors.New("stream closed")
			}
			if q == nil {
				continue
			}
			c.dispatch(ctx, q)
		}
	}
}

// dispatch pushes one quote to every consumer without blocking on any of them.
func (c *QuoteCollector) dispatch(ctx context.Context, q *models.Quote) {
	c.metrics.RecordQuote(q.Symbol)
	c.metrics.RecordLastQuote(q.Symbol, q.Bid, q.Ask)
	c.quotes.Put(q)

	if payload, err := json.Marshal(models.NewMarketDataEnvelope(q)); err == nil {
		c.hub.Broadcast(hub.FeedMarketData, payload)
	} else {
		c.metrics.RecordError("envelope_marshal")
	}

	c.signals.Submit(q)

	if c.pipe != nil {
		if err := c.pipe.Process(ctx, q); err != nil {
			c.logger.Debug("archive: process failed", applogger.Error(err))
		}
	}
}

// Shutdown stops the pipeline and closes the stream. Pending subscriber queue
// contents are lost by design.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	err := c.stream.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return err
}
