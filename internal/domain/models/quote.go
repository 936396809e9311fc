package models

// Quote is a normalized top-of-book snapshot for one instrument.
// Symbol is always in canonical "BASE/QUOTE" form. Timestamp is the upstream
// event time in milliseconds; upstream may reorder, so consumers must not
// assume per-symbol ordering.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   float64 `json:"bid_size"`
	AskSize   float64 `json:"ask_size"`
	Timestamp int64   `json:"timestamp"`
}

// Delta is the signed size imbalance between bid and ask.
func (q *Quote) Delta() float64 {
	return q.BidSize - q.AskSize
}

// Envelope wraps a record pushed to market-data subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data *Quote `json:"data"`
}

// NewMarketDataEnvelope wraps a quote for the raw feed.
func NewMarketDataEnvelope(q *Quote) *Envelope {
	return &Envelope{Type: "market_data", Data: q}
}
