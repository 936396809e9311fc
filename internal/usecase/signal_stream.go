package usecase

import (
	"context"

	"aegisflow/internal/domain/models"
	drepo "aegisflow/internal/domain/repository"
	"aegisflow/internal/service/hub"
	"aegisflow/internal/services/inference"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
)

// SignalStream runs inference off the feed's critical path: quotes enter a
// bounded queue and a single worker scores them, broadcasting each resulting
// Signal on the insights feed. A full queue drops the newest quote; the feed
// read loop is never the one waiting.
type SignalStream struct {
	engine    *inference.Engine
	sentiment drepo.SentimentReader
	hub       *hub.Hub
	logger    *applogger.Logger
	metrics   drepo.Metrics

	in chan *models.Quote
}

// NewSignalStream creates the inference stage with the given queue depth.
func NewSignalStream(engine *inference.Engine, sentiment drepo.SentimentReader, h *hub.Hub, queueSize int, l *applogger.Logger, m drepo.Metrics) *SignalStream {
	if queueSize <= 0 {
		queueSize = 512
	}
	return &SignalStream{
		engine:    engine,
		sentiment: sentiment,
		hub:       h,
		logger:    l,
		metrics:   m,
		in:        make(chan *models.Quote, queueSize),
	}
}

// Submit enqueues a quote for inference without blocking.
func (s *SignalStream) Submit(q *models.Quote) {
	select {
	case s.in <- q:
	default:
		s.metrics.RecordError("inference_backlog")
	}
}

// Start launches the inference worker.
func (s *SignalStream) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-s.in:
				if q == nil {
					continue
				}
				s.process(q)
			}
		}
	}()
}

func (s *SignalStream) process(q *models.Quote) {
	sig := s.engine.Infer(q, s.sentiment.Snapshot())
	payload, err := json.Marshal(sig)
	if err != nil {
		s.metrics.RecordError("signal_marshal")
		s.logger.Error("signal: marshal failed", applogger.Error(err))
		return
	}
	s.hub.Broadcast(hub.FeedInsights, payload)
}
