package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"aegisflow/internal/handler/api"
	"aegisflow/internal/service/hub"
	"aegisflow/internal/service/sentiment"
	"aegisflow/internal/usecase"
	pkgch "aegisflow/pkg/clickhouse"
	"aegisflow/pkg/config"
	xhttp "aegisflow/pkg/http"
	applogger "aegisflow/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	collector  *usecase.QuoteCollector
	hub        *hub.Hub
	handler    *api.StreamHandler
	sentiments *sentiment.RedisSource
	archive    *usecase.ArchiveProcessor
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
// sentiments, archive and chClient may be nil when their features are
// disabled in config.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.QuoteCollector,
	h *hub.Hub,
	handler *api.StreamHandler,
	sentiments *sentiment.RedisSource,
	archive *usecase.ArchiveProcessor,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		logger:     l,
		collector:  collector,
		hub:        h,
		handler:    handler,
		sentiments: sentiments,
		archive:    archive,
		chClient:   chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.sentiments != nil {
		a.sentiments.Start(ctx)
		a.logger.Info("sentiment poller started", applogger.String("key", a.cfg.Sentiment.Key))
	}

	if err := a.collector.Start(ctx); err != nil {
		a.logger.Error("collector start error", applogger.Error(err))
		return err
	}
	a.logger.Info("collector started", applogger.Strings("symbols", a.cfg.Polygon.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services. Subscriber queues are closed;
// unsent records are lost by design.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.collector.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("collector stop error", applogger.Error(err))
	}

	a.hub.Shutdown()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.sentiments != nil {
		a.sentiments.Stop()
	}

	if a.archive != nil {
		a.archive.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
