package inference

import (
	"fmt"
	"math"
	"time"

	"aegisflow/internal/domain/models"
	drepo "aegisflow/internal/domain/repository"
	applogger "aegisflow/pkg/logger"
)

// Neutral stand-ins for the VWAP engine and support/resistance model until
// those collaborators are wired in.
const (
	defaultVWAPDeviation     = 0.0
	defaultSupportResistance = 0.5
)

var signalLabels = []string{models.SignalNeutral, models.SignalBuy, models.SignalSell}

// Engine turns one quote plus the current sentiment context into a Signal.
// It never returns an error: any failure degrades into a NEUTRAL fallback.
type Engine struct {
	scorer  drepo.Scorer
	logger  *applogger.Logger
	metrics drepo.Metrics
}

// NewEngine creates an inference engine around a scoring model.
func NewEngine(scorer drepo.Scorer, l *applogger.Logger, m drepo.Metrics) *Engine {
	return &Engine{scorer: scorer, logger: l, metrics: m}
}

// ExtractFeatures derives the fixed-order feature vector from one quote and
// one sentiment snapshot. The zero-size denominator is guarded: imbalance is 0
// when both sizes are 0.
func ExtractFeatures(q *models.Quote, sc models.SentimentContext) (models.FeatureVector, error) {
	var fv models.FeatureVector
	if q == nil {
		return fv, fmt.Errorf("quote is nil")
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		return fv, fmt.Errorf("%s: non-positive price", q.Symbol)
	}
	if q.BidSize < 0 || q.AskSize < 0 {
		return fv, fmt.Errorf("%s: negative size", q.Symbol)
	}

	delta := q.Delta()
	imbalance := 0.0
	if total := q.BidSize + q.AskSize; total > 0 {
		imbalance = math.Abs(delta) / total
	}

	fv[models.FeatDelta] = delta
	fv[models.FeatImbalance] = imbalance
	fv[models.FeatVWAPDeviation] = defaultVWAPDeviation
	fv[models.FeatSentiment] = sc.Sentiment
	fv[models.FeatImpact] = float64(sc.Impact)
	fv[models.FeatSupportResistance] = defaultSupportResistance
	return fv, nil
}

// Infer runs feature extraction and scoring for one quote.
// Degraded input and scorer failures both fall back to NEUTRAL; scorer panics
// are recovered too but counted separately so programming errors stay visible.
func (e *Engine) Infer(q *models.Quote, sc models.SentimentContext) (sig *models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordError("inference_panic")
			e.logger.Error("inference: scorer panic", applogger.Any("cause", r))
			sig = fallbackSignal(fmt.Errorf("%v", r))
		}
	}()

	fv, err := ExtractFeatures(q, sc)
	if err != nil {
		e.metrics.RecordError("inference_input")
		e.logger.Warn("inference: degraded input", applogger.Error(err))
		return fallbackSignal(err)
	}

	class, proba, err := e.scorer.Score(fv)
	if err != nil {
		e.metrics.RecordError("inference_score")
		e.logger.Error("inference: scorer failed", applogger.Error(err))
		return fallbackSignal(err)
	}
	if class < 0 || class >= len(signalLabels) || len(proba) != len(signalLabels) {
		err := fmt.Errorf("scorer returned class=%d proba=%d", class, len(proba))
		e.metrics.RecordError("inference_score")
		e.logger.Error("inference: invalid scorer output", applogger.Error(err))
		return fallbackSignal(err)
	}

	label := signalLabels[class]
	e.metrics.RecordSignal(label)
	return &models.Signal{
		Label:      label,
		Confidence: roundConfidence(maxProba(proba)),
		Text:       insightText(label, q, proba),
		Timestamp:  time.Now().UTC(),
	}
}

// insightText fills the label-keyed rationale template with the quote's raw
// fields. Pure lookup; no business logic beyond formatting.
func insightText(label string, q *models.Quote, proba []float64) string {
	switch label {
	case models.SignalBuy:
		return fmt.Sprintf("Strong buying pressure detected. Delta: %+.0f contracts. BUY %s.", q.Delta(), q.Symbol)
	case models.SignalSell:
		return fmt.Sprintf("Institutional selling at resistance. Volume imbalance: %.0f%%. SELL %s.", proba[2]*100, q.Symbol)
	default:
		return "Market balanced. No clear edge. Await NFP/CPI release."
	}
}

func fallbackSignal(cause error) *models.Signal {
	return &models.Signal{
		Label:      models.SignalNeutral,
		Confidence: 0,
		Text:       fmt.Sprintf("AI Engine Error: %v", cause),
		Timestamp:  time.Now().UTC(),
	}
}

// roundConfidence maps a probability onto [0,100] with one decimal.
func roundConfidence(p float64) float64 {
	return math.Round(p*1000) / 10
}

func maxProba(proba []float64) float64 {
	m := proba[0]
	for _, p := range proba[1:] {
		if p > m {
			m = p
		}
	}
	return m
}
