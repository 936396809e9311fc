package models

import "time"

// Signal labels, in the order the scoring model emits class indexes.
const (
	SignalNeutral = "NEUTRAL"
	SignalBuy     = "BUY"
	SignalSell    = "SELL"
)

// Impact levels for economic news.
const (
	ImpactLow = iota
	ImpactMedium
	ImpactHigh
)

// Signal is the output of one inference pass. Timestamp is the inference
// wall-clock time (UTC), not the source quote's event time.
type Signal struct {
	Label      string    `json:"signal"`
	Confidence float64   `json:"confidence"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// SentimentContext is the news side-channel input to inference.
// It is replaced wholesale on update (last-write-wins); readers always see a
// consistent snapshot.
type SentimentContext struct {
	Sentiment float64 `json:"sentiment"` // -1 to +1
	Impact    int     `json:"impact"`    // ImpactLow..ImpactHigh
}

// FeatureVector is the fixed-order numeric tuple the scoring model was trained
// against. The order is part of the inference contract and must never change.
type FeatureVector [6]float64

// Feature indexes into FeatureVector.
const (
	FeatDelta = iota
	FeatImbalance
	FeatVWAPDeviation
	FeatSentiment
	FeatImpact
	FeatSupportResistance
)
