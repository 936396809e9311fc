package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aegisflow/internal/domain/models"
	"aegisflow/internal/service/cache"
	"aegisflow/internal/service/hub"
	"aegisflow/internal/service/sentiment"
	"aegisflow/internal/services/inference"
	applogger "aegisflow/pkg/logger"

	"github.com/goccy/go-json"
)

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	recon  int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{errors: make(map[string]int)} }

func (m *fakeMetrics) RecordQuote(string)                       {}
func (m *fakeMetrics) RecordSignal(string)                      {}
func (m *fakeMetrics) RecordError(kind string)                  { m.mu.Lock(); m.errors[kind]++; m.mu.Unlock() }
func (m *fakeMetrics) RecordLastQuote(string, float64, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)            {}
func (m *fakeMetrics) RecordReconnect()                         { m.mu.Lock(); m.recon++; m.mu.Unlock() }
func (m *fakeMetrics) SetSubscribers(string, int)               {}
func (m *fakeMetrics) RecordBroadcastDrop(string)               {}

func (m *fakeMetrics) reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recon
}

// fakeStream scripts the upstream connection for collector tests.
type fakeStream struct {
	mu         sync.Mutex
	authErr    error
	connected  bool
	connects   int
	auths      int
	subscribes int

	quoteCh chan *models.Quote
	errCh   chan error

	reconnected chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		quoteCh:     make(chan *models.Quote, 16),
		errCh:       make(chan error, 1),
		reconnected: make(chan struct{}, 8),
	}
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeStream) Authenticate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths++
	return f.authErr
}

func (f *fakeStream) Subscribe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	return nil
}

func (f *fakeStream) Read(context.Context) (<-chan *models.Quote, <-chan error) {
	return f.quoteCh, f.errCh
}

func (f *fakeStream) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	err := f.authErr
	f.auths++
	f.subscribes++
	f.connected = err == nil
	f.mu.Unlock()
	select {
	case f.reconnected <- struct{}{}:
	default:
	}
	if err != nil {
		// keep the cycle from spinning hot in tests
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
	}
	return err
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) handshakes() (auths, subscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths, f.subscribes
}

func collectorLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestCollector(t *testing.T, stream *fakeStream) (*QuoteCollector, *hub.Hub, *cache.QuoteCache, *fakeMetrics) {
	t.Helper()
	l := collectorLogger(t)
	m := newFakeMetrics()
	h := hub.New(32, hub.PolicyEvict, m)
	quotes := cache.NewQuoteCache(time.Minute)
	store := sentiment.NewStore(models.SentimentContext{})
	engine := inference.NewEngine(inference.NewPressureScorer(), l, m)
	signals := NewSignalStream(engine, store, h, 16, l, m)
	c := NewQuoteCollector(stream, h, signals, quotes, nil, l, m)
	return c, h, quotes, m
}

func recvPayload(t *testing.T, sub *hub.Subscriber) []byte {
	t.Helper()
	select {
	case b, ok := <-sub.Out():
		if !ok {
			t.Fatalf("subscriber queue closed")
		}
		return b
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
	return nil
}

func TestCollectorFansOutQuotes(t *testing.T) {
	stream := newFakeStream()
	c, h, quotes, _ := newTestCollector(t, stream)

	md := h.Register(hub.FeedMarketData)
	ins := h.Register(hub.FeedInsights)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	q := &models.Quote{Symbol: "EUR/USD", Bid: 1.0850, Ask: 1.0852, BidSize: 120, AskSize: 40, Timestamp: 1700000000123}
	stream.quoteCh <- q

	var env models.Envelope
	if err := json.Unmarshal(recvPayload(t, md), &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Type != "market_data" || env.Data == nil || env.Data.Symbol != "EUR/USD" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Data.BidSize != 120 || env.Data.AskSize != 40 {
		t.Fatalf("raw sizes must survive fan-out: %+v", env.Data)
	}

	var sig models.Signal
	if err := json.Unmarshal(recvPayload(t, ins), &sig); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if sig.Label != models.SignalBuy {
		t.Fatalf("expected BUY from one-sided book, got %q", sig.Label)
	}

	if got, ok := quotes.Get("EUR/USD"); !ok || got.Bid != 1.0850 {
		t.Fatalf("latest-quote cache miss: %v %v", got, ok)
	}

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := c.Shutdown(sctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCollectorReconnectsOnStreamError(t *testing.T) {
	stream := newFakeStream()
	c, _, _, m := newTestCollector(t, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	stream.errCh <- errors.New("websocket: close 1006")

	select {
	case <-stream.reconnected:
	case <-time.After(2 * time.Second):
		t.Fatalf("collector never reconnected")
	}
	if m.reconnects() == 0 {
		t.Fatalf("reconnect not counted")
	}
	auths, subscribes := stream.handshakes()
	if auths < 2 || subscribes < 2 {
		t.Fatalf("reconnect must redo auth and subscribe, got %d/%d", auths, subscribes)
	}

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	_ = c.Shutdown(sctx)
}

func TestCollectorRetriesFailedAuth(t *testing.T) {
	stream := newFakeStream()
	stream.authErr = errors.New("authentication rejected")
	c, _, _, _ := newTestCollector(t, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The failed handshake must feed the reconnect cycle, not kill the loop.
	for i := 0; i < 2; i++ {
		select {
		case <-stream.reconnected:
		case <-time.After(2 * time.Second):
			t.Fatalf("reconnect cycle stalled after auth failure")
		}
	}

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	_ = c.Shutdown(sctx)
}

func TestSignalStreamDropsWhenBacklogged(t *testing.T) {
	l := collectorLogger(t)
	m := newFakeMetrics()
	h := hub.New(4, hub.PolicyEvict, m)
	store := sentiment.NewStore(models.SentimentContext{})
	engine := inference.NewEngine(inference.NewPressureScorer(), l, m)
	s := NewSignalStream(engine, store, h, 1, l, m)

	// Worker not started: the queue fills and further submits must not block.
	q := &models.Quote{Symbol: "EUR/USD", Bid: 1.1, Ask: 1.2, BidSize: 1, AskSize: 1, Timestamp: 1}
	s.Submit(q)
	done := make(chan struct{})
	go func() {
		s.Submit(q)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("submit blocked on a full queue")
	}

	m.mu.Lock()
	dropped := m.errors["inference_backlog"]
	m.mu.Unlock()
	if dropped != 1 {
		t.Fatalf("expected 1 backlog drop, got %d", dropped)
	}
}
