package sentiment

import (
	"context"
	"errors"
	"time"

	"aegisflow/internal/domain/models"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisSource polls a Redis key for the latest news sentiment document and
// pushes it into the Store. The news ingestion service owns the key; this side
// only ever reads.
type RedisSource struct {
	rdb      *redis.Client
	store    *Store
	key      string
	interval time.Duration
	logger   *applogger.Logger

	stopCh chan struct{}
}

// NewRedisSource creates a poller over the given key.
func NewRedisSource(rdb *redis.Client, store *Store, key string, interval time.Duration, l *applogger.Logger) *RedisSource {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &RedisSource{
		rdb:      rdb,
		store:    store,
		key:      key,
		interval: interval,
		logger:   l,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the poll loop. A missing key or a bad document leaves the
// last good context in place.
func (s *RedisSource) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.poll(ctx)
			}
		}
	}()
}

// Stop terminates the poll loop.
func (s *RedisSource) Stop() {
	close(s.stopCh)
}

func (s *RedisSource) poll(ctx context.Context) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("sentiment: redis read failed", applogger.Error(err))
		}
		return
	}
	var sc models.SentimentContext
	if err := json.Unmarshal(b, &sc); err != nil {
		s.logger.Warn("sentiment: bad document", applogger.Error(err))
		return
	}
	if sc.Sentiment < -1 || sc.Sentiment > 1 {
		s.logger.Warn("sentiment: out of range", applogger.Any("sentiment", sc.Sentiment))
		return
	}
	if sc.Impact < models.ImpactLow || sc.Impact > models.ImpactHigh {
		sc.Impact = models.ImpactLow
	}
	s.store.Update(sc)
}
