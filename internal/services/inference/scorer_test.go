package inference

import (
	"math"
	"testing"

	"aegisflow/internal/domain/models"
)

func buildFeatures(delta, imbalance, sentiment float64) models.FeatureVector {
	var fv models.FeatureVector
	fv[models.FeatDelta] = delta
	fv[models.FeatImbalance] = imbalance
	fv[models.FeatSentiment] = sentiment
	return fv
}

func TestPressureScorerBuy(t *testing.T) {
	s := NewPressureScorer()
	class, proba, err := s.Score(buildFeatures(80, 0.5, 0))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if class != ClassBuy {
		t.Fatalf("class: got %d want %d", class, ClassBuy)
	}
	if len(proba) != 3 {
		t.Fatalf("proba length: %d", len(proba))
	}
	if proba[ClassBuy] <= proba[ClassNeutral] || proba[ClassBuy] <= proba[ClassSell] {
		t.Fatalf("winning class must carry the highest probability: %v", proba)
	}
	if sum := proba[0] + proba[1] + proba[2]; math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities must sum to 1, got %v", sum)
	}
}

func TestPressureScorerSell(t *testing.T) {
	s := NewPressureScorer()
	class, proba, err := s.Score(buildFeatures(-60, 0.6, 0))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if class != ClassSell {
		t.Fatalf("class: got %d want %d", class, ClassSell)
	}
	if proba[ClassSell] <= 0.5 {
		t.Fatalf("decisive edge must score above 0.5, got %v", proba[ClassSell])
	}
}

func TestPressureScorerNeutralBelowThreshold(t *testing.T) {
	s := NewPressureScorer()
	class, _, err := s.Score(buildFeatures(2, 0.05, 0))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if class != ClassNeutral {
		t.Fatalf("class: got %d want %d", class, ClassNeutral)
	}
}

func TestPressureScorerSentimentTilt(t *testing.T) {
	s := NewPressureScorer()
	// Imbalance alone is below threshold; strong positive sentiment tips it.
	class, _, err := s.Score(buildFeatures(5, 0.1, 0.9))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if class != ClassBuy {
		t.Fatalf("sentiment tilt: got %d want %d", class, ClassBuy)
	}
}

func TestPressureScorerDeterministic(t *testing.T) {
	s := NewPressureScorer()
	fv := buildFeatures(80, 0.5, 0.2)
	c1, p1, err := s.Score(fv)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	c2, p2, err := s.Score(fv)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("class changed between identical calls: %d vs %d", c1, c2)
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("proba changed between identical calls: %v vs %v", p1, p2)
		}
	}
}

func TestPressureScorerRejectsBadImbalance(t *testing.T) {
	s := NewPressureScorer()
	if _, _, err := s.Score(buildFeatures(10, 1.5, 0)); err == nil {
		t.Fatalf("imbalance > 1 must error")
	}
	if _, _, err := s.Score(buildFeatures(10, -0.1, 0)); err == nil {
		t.Fatalf("imbalance < 0 must error")
	}
}
