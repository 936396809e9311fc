package polygon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"aegisflow/internal/domain/models"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type nullMetrics struct{}

func (nullMetrics) RecordQuote(string)                       {}
func (nullMetrics) RecordSignal(string)                      {}
func (nullMetrics) RecordError(string)                       {}
func (nullMetrics) RecordLastQuote(string, float64, float64) {}
func (nullMetrics) RecordLatency(string, float64)            {}
func (nullMetrics) RecordReconnect()                         {}
func (nullMetrics) SetSubscribers(string, int)               {}
func (nullMetrics) RecordBroadcastDrop(string)               {}

func clientLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// feedServer is a scripted upstream: it answers the auth message with the
// configured status and records subscribe requests.
type feedServer struct {
	t          *testing.T
	authStatus string // status sent after auth; "" means stay silent
	srv        *httptest.Server
	upgrader   websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	auths      int
	subscribed []string
}

func newFeedServer(t *testing.T, authStatus string) *feedServer {
	fs := &feedServer{t: t, authStatus: authStatus}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conn = conn
	fs.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg actionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "auth":
			fs.mu.Lock()
			fs.auths++
			fs.mu.Unlock()
			if fs.authStatus != "" {
				reply, _ := json.Marshal([]map[string]string{{"ev": "status", "status": fs.authStatus, "message": fs.authStatus}})
				_ = conn.WriteMessage(websocket.TextMessage, reply)
			}
		case "subscribe":
			fs.mu.Lock()
			fs.subscribed = append(fs.subscribed, msg.Params)
			fs.mu.Unlock()
		}
	}
}

func (fs *feedServer) send(t *testing.T, frame string) {
	t.Helper()
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	if conn == nil {
		t.Fatalf("no upstream connection")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (fs *feedServer) subscriptions() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.subscribed))
	copy(out, fs.subscribed)
	return out
}

func (fs *feedServer) authCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.auths
}

// closeActive drops the current upstream connection, simulating a transport
// failure.
func (fs *feedServer) closeActive(t *testing.T) {
	t.Helper()
	fs.mu.Lock()
	conn := fs.conn
	fs.conn = nil
	fs.mu.Unlock()
	if conn == nil {
		t.Fatalf("no upstream connection to close")
	}
	_ = conn.Close()
}

func newTestClient(t *testing.T, fs *feedServer, apiKey string) *Client {
	t.Helper()
	c := New(apiKey, fs.url(), []string{"EUR/USD", "XAU/USD"},
		10*time.Millisecond, time.Minute, time.Minute, clientLogger(t), nullMetrics{})
	return c.(*Client)
}

func TestClientHandshakeAndRead(t *testing.T) {
	fs := newFeedServer(t, "auth_success")
	c := newTestClient(t, fs, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(fs.subscriptions()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions never arrived: %v", fs.subscriptions())
		}
		time.Sleep(5 * time.Millisecond)
	}
	subs := fs.subscriptions()
	if subs[0] != "Q.EURUSD" || subs[1] != "Q.XAUUSD" {
		t.Fatalf("unexpected subscription params: %v", subs)
	}

	quotes, errs := c.Read(ctx)
	fs.send(t, `[{"ev":"status","status":"success","message":"subscribed"},{"ev":"Q","p":"EUR/USD","bP":1.0850,"aP":1.0852,"bS":120,"aS":40,"t":1700000000123}]`)

	select {
	case q := <-quotes:
		if q.Symbol != "EUR/USD" || q.BidSize != 120 {
			t.Fatalf("unexpected quote: %+v", q)
		}
	case err := <-errs:
		t.Fatalf("stream error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("quote never arrived")
	}
}

func TestClientAuthRejected(t *testing.T) {
	fs := newFeedServer(t, "auth_failed")
	c := newTestClient(t, fs, "bad-key")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("sending the auth message must not fail: %v", err)
	}

	// The rejection status arrives in the stream and must surface as a
	// transport error, feeding the reconnect cycle.
	quotes, errs := c.Read(ctx)
	select {
	case err := <-errs:
		var terr *models.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %T: %v", err, err)
		}
		if terr.Op != "auth" {
			t.Fatalf("expected auth failure, got op %q", terr.Op)
		}
	case q := <-quotes:
		t.Fatalf("unexpected quote after rejection: %+v", q)
	case <-time.After(2 * time.Second):
		t.Fatalf("rejection never surfaced")
	}
}

func TestClientAuthWithoutKey(t *testing.T) {
	fs := newFeedServer(t, "auth_success")
	c := newTestClient(t, fs, "")

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Authenticate(ctx); err == nil {
		t.Fatalf("missing key must fail the first authentication attempt")
	}
}

func TestClientAuthSilentUpstream(t *testing.T) {
	fs := newFeedServer(t, "") // never acknowledges auth
	c := newTestClient(t, fs, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("silent upstream must be tolerated: %v", err)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The stream must be fully usable afterwards: quotes arrive, no sticky
	// read error from the auth phase.
	quotes, errs := c.Read(ctx)
	fs.send(t, `[{"ev":"Q","p":"EUR/USD","bP":1.0850,"aP":1.0852,"bS":120,"aS":40,"t":1700000000123}]`)

	select {
	case q := <-quotes:
		if q.Symbol != "EUR/USD" {
			t.Fatalf("unexpected quote: %+v", q)
		}
	case err := <-errs:
		t.Fatalf("stream dead after silent auth: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("quote never arrived after silent auth")
	}
}

func TestClientReconnectRedoesHandshake(t *testing.T) {
	fs := newFeedServer(t, "auth_success")
	c := newTestClient(t, fs, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(fs.subscriptions()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("initial subscriptions never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, errs := c.Read(ctx)
	fs.closeActive(t)
	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatalf("transport failure never surfaced")
	}

	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	// The full handshake is redone: a second auth message and the complete
	// subscription set again.
	deadline = time.Now().Add(2 * time.Second)
	for fs.authCount() < 2 || len(fs.subscriptions()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("handshake not redone: auths=%d subs=%v", fs.authCount(), fs.subscriptions())
		}
		time.Sleep(5 * time.Millisecond)
	}
	subs := fs.subscriptions()
	if subs[2] != "Q.EURUSD" || subs[3] != "Q.XAUUSD" {
		t.Fatalf("unexpected resubscription params: %v", subs)
	}

	// And the new stream delivers.
	quotes, errs2 := c.Read(ctx)
	fs.send(t, `[{"ev":"Q","p":"EUR/USD","bP":1.0851,"aP":1.0853,"bS":50,"aS":30,"t":1700000001000}]`)
	select {
	case q := <-quotes:
		if q.Symbol != "EUR/USD" || q.Bid != 1.0851 {
			t.Fatalf("unexpected quote after reconnect: %+v", q)
		}
	case err := <-errs2:
		t.Fatalf("stream error after reconnect: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("quote never arrived after reconnect")
	}
}

func TestClientReadCyclesReleaseGoroutines(t *testing.T) {
	fs := newFeedServer(t, "auth_success")
	c := newTestClient(t, fs, "test-key")
	ctx := context.Background()

	before := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		_, errs := c.Read(ctx)
		fs.closeActive(t)
		select {
		case <-errs:
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: read loop never exited", i)
		}
		_ = c.Close()
	}

	// Ping loops are scoped to their read cycle; repeated cycles must not
	// accumulate goroutines.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+3 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines leaked across read cycles: %d -> %d", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientReadSkipsMalformed(t *testing.T) {
	fs := newFeedServer(t, "auth_success")
	c := newTestClient(t, fs, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	quotes, errs := c.Read(ctx)
	fs.send(t, `not json`)
	fs.send(t, `[{"ev":"Q","p":"EUR/USD","bP":1.0850}]`) // missing fields
	fs.send(t, `[{"ev":"Q","p":"GBP/USD","bP":1.2701,"aP":1.2703,"bS":30,"aS":60,"t":1700000000500}]`)

	select {
	case q := <-quotes:
		if q.Symbol != "GBP/USD" {
			t.Fatalf("unexpected quote: %+v", q)
		}
	case err := <-errs:
		t.Fatalf("malformed input must not kill the stream: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("valid quote never arrived")
	}
}
