package di

import (
	"fmt"

	"aegisflow/internal/domain/models"
	"aegisflow/internal/domain/repository"
	"aegisflow/internal/handler/api"
	mid "aegisflow/internal/middleware"
	internalrepo "aegisflow/internal/repository"
	"aegisflow/internal/service/cache"
	"aegisflow/internal/service/hub"
	"aegisflow/internal/service/polygon"
	"aegisflow/internal/service/sentiment"
	"aegisflow/internal/services/inference"
	"aegisflow/internal/usecase"
	pkgch "aegisflow/pkg/clickhouse"
	"aegisflow/pkg/config"
	pkgkafka "aegisflow/pkg/kafka"
	"aegisflow/pkg/logger"
	"aegisflow/pkg/metrics"
	"aegisflow/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideHub creates the distribution hub.
func ProvideHub(cfg *config.Config, m repository.Metrics) *hub.Hub {
	return hub.New(cfg.Hub.SubscriberQueue, cfg.Hub.Policy, m)
}

// ProvideQuoteCache creates the latest-quote snapshot cache.
func ProvideQuoteCache(cfg *config.Config) *cache.QuoteCache {
	return cache.NewQuoteCache(cfg.Quotes.CacheTTL)
}

// ProvideSentimentStore seeds the sentiment context from config defaults.
func ProvideSentimentStore(cfg *config.Config) *sentiment.Store {
	return sentiment.NewStore(models.SentimentContext{
		Sentiment: cfg.Sentiment.Default.Sentiment,
		Impact:    cfg.Sentiment.Default.Impact,
	})
}

// ProvideSentimentReader exposes the store to the inference stage.
func ProvideSentimentReader(store *sentiment.Store) repository.SentimentReader {
	return store
}

// ProvideSentimentSource creates the Redis poller, or nil when disabled.
func ProvideSentimentSource(cfg *config.Config, store *sentiment.Store, l *logger.Logger) *sentiment.RedisSource {
	if !cfg.Sentiment.Redis.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Sentiment.Redis.Addr,
		Password: cfg.Sentiment.Redis.Password,
		DB:       cfg.Sentiment.Redis.DB,
	})
	return sentiment.NewRedisSource(rdb, store, cfg.Sentiment.Key, cfg.Sentiment.PollInterval, l)
}

// ProvideScorer creates the in-process scoring model.
func ProvideScorer(cfg *config.Config) repository.Scorer {
	s := inference.NewPressureScorer()
	if cfg.Inference.MinImbalance > 0 {
		s.MinImbalance = cfg.Inference.MinImbalance
	}
	return s
}

// ProvideEngine creates the inference engine.
func ProvideEngine(scorer repository.Scorer, l *logger.Logger, m repository.Metrics) *inference.Engine {
	return inference.NewEngine(scorer, l, m)
}

// ProvideSignalStream creates the inference worker stage.
func ProvideSignalStream(
	engine *inference.Engine,
	reader repository.SentimentReader,
	h *hub.Hub,
	cfg *config.Config,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.SignalStream {
	return usecase.NewSignalStream(engine, reader, h, cfg.Inference.QueueSize, l, m)
}

// ProvideMarketStream creates the Polygon WebSocket stream.
func ProvideMarketStream(cfg *config.Config, l *logger.Logger, m repository.Metrics) repository.MarketStream {
	return polygon.New(
		cfg.Polygon.APIKey,
		cfg.Polygon.WebSocketURL,
		cfg.Polygon.Symbols,
		cfg.Polygon.ReconnectDelay,
		cfg.Polygon.PingInterval,
		cfg.Polygon.ReadTimeout,
		l,
		m,
	)
}

// ProvideClickHouseClient creates a ClickHouse client when the archive backend
// needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Archive.Backend != usecase.BackendClickHouse {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideArchiveProcessor wires the configured archive backend, or nil when
// archiving is off.
func ProvideArchiveProcessor(cfg *config.Config, chClient *pkgch.Client, m repository.Metrics) (*usecase.ArchiveProcessor, error) {
	switch cfg.Archive.Backend {
	case usecase.BackendNone:
		return nil, nil
	case usecase.BackendKafka:
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
			pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
			pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub := internalrepo.NewKafkaArchive(producer, cfg.Kafka.Topic)
		return usecase.NewArchiveProcessor(pub, nil, m, cfg.Archive.Backend), nil
	case usecase.BackendClickHouse:
		store := internalrepo.NewClickHouseArchive(chClient.DB(), cfg.ClickHouse.Database+".quotes_raw")
		return usecase.NewArchiveProcessor(nil, store, m, cfg.Archive.Backend), nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Archive.Backend)
	}
}

// ProvideArchivePipeline builds the validate/throttle/buffer stage in front of
// the archive backend, or nil when archiving is off.
func ProvideArchivePipeline(proc *usecase.ArchiveProcessor, cfg *config.Config, m repository.Metrics) *mid.ArchivePipeline {
	if proc == nil {
		return nil
	}
	opts := []mid.PipelineOption{}
	if cfg.Archive.MaxRPS > 0 {
		opts = append(opts, mid.WithMaxRPS(cfg.Archive.MaxRPS))
	}
	if cfg.Archive.Buffer > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Archive.Buffer))
	}
	return mid.NewArchivePipeline(proc, m, opts...)
}

// ProvideQuoteCollector creates the feed collector.
func ProvideQuoteCollector(
	stream repository.MarketStream,
	h *hub.Hub,
	signals *usecase.SignalStream,
	quotes *cache.QuoteCache,
	pipe *mid.ArchivePipeline,
	l *logger.Logger,
	m repository.Metrics,
) *usecase.QuoteCollector {
	return usecase.NewQuoteCollector(stream, h, signals, quotes, pipe, l, m)
}

// ProvideStreamHandler creates the HTTP/WS handler.
func ProvideStreamHandler(l *logger.Logger, h *hub.Hub, quotes *cache.QuoteCache, cfg *config.Config) *api.StreamHandler {
	return api.NewStreamHandler(l, h, quotes, cfg.Polygon.Symbols)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	collector *usecase.QuoteCollector,
	h *hub.Hub,
	handler *api.StreamHandler,
	sentiments *sentiment.RedisSource,
	archive *usecase.ArchiveProcessor,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, collector, h, handler, sentiments, archive, chClient)
}
