package polygon

import (
	"fmt"
	"strings"

	"aegisflow/internal/domain/models"
)

// feedEvent is one element of an inbound Polygon event array. Pointer fields
// let us tell a missing required field apart from a zero value.
type feedEvent struct {
	Ev      string   `json:"ev"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Pair    *string  `json:"p"`
	BidPx   *float64 `json:"bP"`
	AskPx   *float64 `json:"aP"`
	BidSz   *float64 `json:"bS"`
	AskSz   *float64 `json:"aS"`
	EventMs *int64   `json:"t"`
}

const (
	evQuote  = "Q"
	evStatus = "status"
)

// quoteCurrencies are recognized quote-side suffixes for compact pair strings,
// longest first so USDT wins over USD.
var quoteCurrencies = []string{"USDT", "USD", "JPY", "EUR", "GBP", "CHF", "CAD", "AUD", "NZD"}

// Normalize maps one upstream event into a canonical Quote.
// Status/control events return (nil, nil) and are silently dropped. Quote
// events with a missing required field return ErrMalformedMessage; the caller
// logs and continues without tearing down the connection.
func Normalize(ev *feedEvent) (*models.Quote, error) {
	if ev.Ev != evQuote {
		return nil, nil
	}
	if ev.Pair == nil {
		return nil, fmt.Errorf("%w: missing pair", models.ErrMalformedMessage)
	}
	if ev.BidPx == nil || ev.AskPx == nil {
		return nil, fmt.Errorf("%w: %s missing bid/ask price", models.ErrMalformedMessage, *ev.Pair)
	}
	if ev.BidSz == nil || ev.AskSz == nil {
		return nil, fmt.Errorf("%w: %s missing bid/ask size", models.ErrMalformedMessage, *ev.Pair)
	}
	if ev.EventMs == nil {
		return nil, fmt.Errorf("%w: %s missing timestamp", models.ErrMalformedMessage, *ev.Pair)
	}

	symbol, err := CanonicalSymbol(*ev.Pair)
	if err != nil {
		return nil, err
	}

	return &models.Quote{
		Symbol:    symbol,
		Bid:       *ev.BidPx,
		Ask:       *ev.AskPx,
		BidSize:   *ev.BidSz,
		AskSize:   *ev.AskSz,
		Timestamp: *ev.EventMs,
	}, nil
}

// CanonicalSymbol rewrites a compact pair string into "BASE/QUOTE" form by
// inserting a separator at the base/quote currency boundary.
// "EURUSD" -> "EUR/USD", "XAUUSD" -> "XAU/USD". Pairs that already carry a
// separator pass through unchanged.
func CanonicalSymbol(pair string) (string, error) {
	if strings.Count(pair, "/") == 1 {
		return pair, nil
	}
	if strings.Contains(pair, "/") {
		return "", fmt.Errorf("%w: bad pair %q", models.ErrMalformedMessage, pair)
	}
	for _, qc := range quoteCurrencies {
		if strings.HasSuffix(pair, qc) && len(pair) > len(qc) {
			return pair[:len(pair)-len(qc)] + "/" + qc, nil
		}
	}
	// Unknown quote currency; six-letter pairs still split cleanly.
	if len(pair) == 6 {
		return pair[:3] + "/" + pair[3:], nil
	}
	return "", fmt.Errorf("%w: bad pair %q", models.ErrMalformedMessage, pair)
}

// SubscriptionParam builds the upstream subscription parameter for a canonical
// symbol: "EUR/USD" -> "Q.EURUSD".
func SubscriptionParam(symbol string) string {
	return "Q." + strings.ReplaceAll(symbol, "/", "")
}
