package polygon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aegisflow/internal/domain/models"
	drepo "aegisflow/internal/domain/repository"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Polygon forex WebSocket feed.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	readTimeout    time.Duration

	logger  *applogger.Logger
	metrics drepo.Metrics

	mu        sync.Mutex // guards conn writes and connected flag
	conn      *websocket.Conn
	connected bool
}

// New creates a new Polygon MarketStream.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval, readTimeout time.Duration, l *applogger.Logger, m drepo.Metrics) drepo.MarketStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		readTimeout:    readTimeout,
		logger:         l,
		metrics:        m,
	}
}

type actionMessage struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return models.NewTransportError("connect", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("polygon: connected", applogger.String("url", c.websocketURL))
	return nil
}

// Authenticate sends the auth message. The upstream's status reply, if any,
// arrives interleaved with the stream and is handled by the read loop, so the
// streaming connection never takes a short-deadline read here (a timed-out
// read would poison it permanently). A silent upstream simply streams; an
// explicit rejection surfaces on the read loop's error channel and feeds the
// reconnect cycle.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.apiKey == "" {
		return models.NewTransportError("auth", errors.New("polygon api key not configured"))
	}
	if err := c.writeJSON(actionMessage{Action: "auth", Params: c.apiKey}); err != nil {
		return models.NewTransportError("auth", err)
	}
	return nil
}

// Subscribe sends one subscription request per configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.IsConnected() {
		return models.NewTransportError("subscribe", errors.New("not connected"))
	}
	for _, s := range c.symbols {
		msg := actionMessage{Action: "subscribe", Params: SubscriptionParam(s)}
		if err := c.writeJSON(msg); err != nil {
			return models.NewTransportError("subscribe", fmt.Errorf("%s: %w", s, err))
		}
		c.logger.Info("polygon: subscribed", applogger.String("symbol", s))
	}
	return nil
}

// Read streams normalized quotes and transport errors. Quotes are pushed into
// a buffered channel with drop-on-backpressure so a slow consumer never stalls
// the socket. Malformed messages are counted and skipped; an auth rejection
// seen in the stream is a transport error.
func (c *Client) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})

	// ping loop, scoped to this read cycle so reconnects do not pile up
	// tickers
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn := c.current(); conn != nil {
					c.mu.Lock()
					_ = conn.WriteMessage(websocket.PingMessage, nil)
					c.mu.Unlock()
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(done)
		defer close(quotes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			conn := c.current()
			if conn == nil {
				errs <- models.NewTransportError("read", errors.New("conn nil"))
				return
			}
			if c.readTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				errs <- models.NewTransportError("read", err)
				return
			}
			var evs []feedEvent
			if err := json.Unmarshal(data, &evs); err != nil {
				c.metrics.RecordError("malformed_frame")
				c.logger.Warn("polygon: undecodable frame", applogger.Error(err))
				continue
			}
			for i := range evs {
				if evs[i].Ev == evStatus {
					switch evs[i].Status {
					case "auth_success":
						c.logger.Info("polygon: authenticated")
					case "auth_failed", "auth_timeout":
						errs <- models.NewTransportError("auth", fmt.Errorf("rejected: %s", evs[i].Message))
						return
					}
					continue
				}
				q, err := Normalize(&evs[i])
				if err != nil {
					c.metrics.RecordError("malformed_message")
					c.logger.Warn("polygon: dropped message", applogger.Error(err))
					continue
				}
				if q == nil {
					continue // non-quote event
				}
				select {
				case quotes <- q:
				default:
					c.metrics.RecordError("read_backpressure")
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect tears the transport down and runs the connect/auth/subscribe
// sequence again after the fixed reconnect delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if err := c.Authenticate(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection. Safe to call on every exit path.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
