//go:build wireinject
// +build wireinject

package di

import (
	"aegisflow/pkg/config"
	"aegisflow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Core services
		ProvideHub,
		ProvideQuoteCache,
		ProvideSentimentStore,
		ProvideSentimentReader,
		ProvideSentimentSource,

		// Inference
		ProvideScorer,
		ProvideEngine,
		ProvideSignalStream,

		// Feed
		ProvideMarketStream,

		// Archive (optional backends)
		ProvideClickHouseClient,
		ProvideArchiveProcessor,
		ProvideArchivePipeline,

		// Use cases and surface
		ProvideQuoteCollector,
		ProvideStreamHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
