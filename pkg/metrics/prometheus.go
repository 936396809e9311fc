package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	quotesTotal     *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastBid         *prometheus.GaugeVec
	lastAsk         *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	reconnectsTotal prometheus.Counter
	subscribers     *prometheus.GaugeVec
	broadcastDrops  *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		quotesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegisflow_quotes_total",
				Help: "Total number of normalized quotes ingested",
			},
			[]string{"symbol"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegisflow_signals_total",
				Help: "Total number of inference signals produced",
			},
			[]string{"label"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegisflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastBid: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegisflow_last_bid",
				Help: "Last recorded bid price for a symbol",
			},
			[]string{"symbol"},
		),
		lastAsk: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegisflow_last_ask",
				Help: "Last recorded ask price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegisflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		reconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aegisflow_feed_reconnects_total",
				Help: "Total number of upstream feed reconnect cycles",
			},
		),
		subscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegisflow_subscribers",
				Help: "Current number of live subscribers per feed",
			},
			[]string{"feed"},
		),
		broadcastDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegisflow_broadcast_drops_total",
				Help: "Records not delivered to a subscriber due to a full queue",
			},
			[]string{"feed"},
		),
	}
}

func (r *Recorder) RecordQuote(symbol string) {
	r.quotesTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordSignal(label string) {
	r.signalsTotal.WithLabelValues(label).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastQuote(symbol string, bid, ask float64) {
	r.lastBid.WithLabelValues(symbol).Set(bid)
	r.lastAsk.WithLabelValues(symbol).Set(ask)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordReconnect() {
	r.reconnectsTotal.Inc()
}

func (r *Recorder) SetSubscribers(feed string, n int) {
	r.subscribers.WithLabelValues(feed).Set(float64(n))
}

func (r *Recorder) RecordBroadcastDrop(feed string) {
	r.broadcastDrops.WithLabelValues(feed).Inc()
}
