package inference

import (
	"fmt"
	"math"

	"aegisflow/internal/domain/models"
)

// Class indexes emitted by scorers, matching signalLabels order.
const (
	ClassNeutral = iota
	ClassBuy
	ClassSell
)

// PressureScorer is the in-process stand-in for the trained classification
// model. It reads directional pressure from the delta/imbalance features,
// nudged by sentiment, and emits a softmax-shaped distribution over
// NEUTRAL/BUY/SELL. Deterministic: identical features score identically.
type PressureScorer struct {
	// MinImbalance below which the market is considered balanced.
	MinImbalance float64
}

// NewPressureScorer creates a scorer with the default balance threshold.
func NewPressureScorer() *PressureScorer {
	return &PressureScorer{MinImbalance: 0.2}
}

// Score implements repository.Scorer.
func (s *PressureScorer) Score(fv models.FeatureVector) (int, []float64, error) {
	delta := fv[models.FeatDelta]
	imbalance := fv[models.FeatImbalance]
	sentiment := fv[models.FeatSentiment]

	if imbalance < 0 || imbalance > 1 {
		return 0, nil, fmt.Errorf("imbalance out of range: %v", imbalance)
	}

	// Directional edge in [-1, 1]: order-flow imbalance signed by delta,
	// tilted by news sentiment.
	edge := imbalance * sign(delta)
	edge = clamp(edge+0.3*sentiment, -1, 1)

	if math.Abs(edge) < s.MinImbalance {
		conviction := math.Abs(edge) / 2
		return ClassNeutral, []float64{1 - conviction, conviction / 2 * (1 + sign(edge)), conviction / 2 * (1 - sign(edge))}, nil
	}

	p := 0.5 + math.Abs(edge)/2 // winning class probability in (0.5, 1]
	rest := 1 - p
	if edge > 0 {
		return ClassBuy, []float64{rest / 2, p, rest / 2}, nil
	}
	return ClassSell, []float64{rest / 2, rest / 2, p}, nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
