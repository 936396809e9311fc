package hub

import (
	"sync"

	drepo "aegisflow/internal/domain/repository"
)

// Feed names routed by the hub.
const (
	FeedMarketData = "market_data"
	FeedInsights   = "ai_insights"
)

// Full-queue policies. Evict closes the slow subscriber; Drop loses the record
// for that subscriber only. Either way the broadcaster never blocks.
const (
	PolicyEvict = "evict"
	PolicyDrop  = "drop"
)

// Subscriber is one downstream consumer's handle: a bounded outbound queue the
// hub owns until Unregister or eviction. The mutex serializes sends with the
// close, so a broadcast still holding a reference can never hit a closed
// channel.
type Subscriber struct {
	feed string
	ch   chan []byte

	mu     sync.Mutex
	closed bool
}

// Out is the subscriber's outbound queue. It is closed when the subscriber is
// evicted or unregistered.
func (s *Subscriber) Out() <-chan []byte { return s.ch }

// Feed returns the feed this subscriber is registered on.
func (s *Subscriber) Feed() string { return s.feed }

// send enqueues a payload without blocking. alive is false once the subscriber
// has been closed; sent is false when the queue is full.
func (s *Subscriber) send(payload []byte) (alive, sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- payload:
		return true, true
	default:
		return true, false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Hub fans records out to independently-paced subscribers. A slow or broken
// subscriber never stalls the broadcaster or its peers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	qsize  int
	policy string

	metrics drepo.Metrics
}

// New creates a Hub with the given per-subscriber queue size and full-queue
// policy (PolicyEvict or PolicyDrop).
func New(perSubQueue int, policy string, m drepo.Metrics) *Hub {
	if perSubQueue <= 0 {
		perSubQueue = 256
	}
	if policy != PolicyDrop {
		policy = PolicyEvict
	}
	return &Hub{
		subs:    make(map[string]map[*Subscriber]struct{}),
		qsize:   perSubQueue,
		policy:  policy,
		metrics: m,
	}
}

// Register adds a subscriber to a feed and returns its handle.
// Safe to call concurrently with in-flight broadcasts.
func (h *Hub) Register(feed string) *Subscriber {
	s := &Subscriber{feed: feed, ch: make(chan []byte, h.qsize)}
	h.mu.Lock()
	m := h.subs[feed]
	if m == nil {
		m = make(map[*Subscriber]struct{})
		h.subs[feed] = m
	}
	m[s] = struct{}{}
	n := len(m)
	h.mu.Unlock()
	h.metrics.SetSubscribers(feed, n)
	return s
}

// Unregister removes a subscriber and closes its queue. Idempotent.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	m := h.subs[s.feed]
	if m != nil {
		if _, ok := m[s]; !ok {
			h.mu.Unlock()
			return
		}
		delete(m, s)
	}
	n := len(m)
	h.mu.Unlock()
	s.close()
	h.metrics.SetSubscribers(s.feed, n)
}

// Broadcast delivers payload to every subscriber on the feed without blocking.
// On a full queue the configured policy applies: evict the subscriber or drop
// the record for it.
func (h *Hub) Broadcast(feed string, payload []byte) {
	h.mu.RLock()
	m := h.subs[feed]
	targets := make([]*Subscriber, 0, len(m))
	for s := range m {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var evicted []*Subscriber
	for _, s := range targets {
		alive, sent := s.send(payload)
		if !alive {
			// unregistered by a concurrent caller between snapshot and send
			continue
		}
		if !sent {
			h.metrics.RecordBroadcastDrop(feed)
			if h.policy == PolicyEvict {
				evicted = append(evicted, s)
			}
		}
	}
	for _, s := range evicted {
		h.Unregister(s)
	}
}

// Count returns the number of live subscribers on a feed.
func (h *Hub) Count(feed string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[feed])
}

// Shutdown closes every subscriber queue. Unsent records are lost by design.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]map[*Subscriber]struct{})
	h.mu.Unlock()
	for feed, m := range subs {
		for s := range m {
			s.close()
		}
		h.metrics.SetSubscribers(feed, 0)
	}
}
