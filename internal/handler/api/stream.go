package api

import (
	"net/http"
	"time"

	"aegisflow/internal/service/cache"
	"aegisflow/internal/service/hub"
	xhttp "aegisflow/pkg/http"
	xlogger "aegisflow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// StreamHandler serves the outward surface: liveness, the symbol list, latest
// quote snapshots, and the two websocket push feeds backed by the hub.
type StreamHandler struct {
	logger  *xlogger.Logger
	hub     *hub.Hub
	quotes  *cache.QuoteCache
	symbols []string

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewStreamHandler creates the handler for the configured symbol set.
func NewStreamHandler(l *xlogger.Logger, h *hub.Hub, quotes *cache.QuoteCache, symbols []string) *StreamHandler {
	return &StreamHandler{
		logger:  l,
		hub:     h,
		quotes:  quotes,
		symbols: symbols,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: 5 * time.Second,
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/symbols", h.Symbols)
	g.GET("/quotes/latest", h.LatestQuote)
	e.GET("/ws/market-data", h.MarketDataWS)
	e.GET("/ws/ai-insights", h.InsightsWS)
}

// Health returns a fixed OK payload.
func (h *StreamHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "alive",
		"service": "aegisflow",
	})
}

// Symbols returns the configured instrument set.
func (h *StreamHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.symbols)
}

// LatestQuoteRequest binds the latest-quote query.
type LatestQuoteRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

// LatestQuote serves the last normalized quote for one symbol from the
// snapshot cache.
func (h *StreamHandler) LatestQuote(c echo.Context) error {
	req := &LatestQuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q, ok := h.quotes.Get(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no quote for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, q)
}

// MarketDataWS streams raw quote envelopes to one subscriber.
func (h *StreamHandler) MarketDataWS(c echo.Context) error {
	return h.serveFeed(c, hub.FeedMarketData)
}

// InsightsWS streams inference signals to one subscriber.
func (h *StreamHandler) InsightsWS(c echo.Context) error {
	return h.serveFeed(c, hub.FeedInsights)
}

// serveFeed upgrades the connection, registers it on the hub, and pumps its
// queue until the client goes away or the hub evicts it. A write failure only
// ever terminates this subscriber.
func (h *StreamHandler) serveFeed(c echo.Context, feed string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return nil // upgrader already wrote the response
	}
	defer conn.Close()

	sub := h.hub.Register(feed)
	defer h.hub.Unregister(sub)

	h.logger.Info("subscriber connected", xlogger.String("feed", feed))
	defer h.logger.Info("subscriber disconnected", xlogger.String("feed", feed))

	// Read loop only senses disconnects; subscribers do not send messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case payload, ok := <-sub.Out():
			if !ok {
				// evicted by the hub
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("subscriber write failed",
					xlogger.String("feed", feed), xlogger.Error(err))
				return nil
			}
		}
	}
}
