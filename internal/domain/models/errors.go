package models

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage marks one upstream message that failed to normalize.
// The read loop logs and drops it; the connection stays open.
var ErrMalformedMessage = errors.New("malformed message")

// TransportError is any connect/auth/subscribe/read failure on the upstream
// feed. It triggers the reconnect cycle and is never surfaced to subscribers.
type TransportError struct {
	Op  string // "connect", "auth", "subscribe", "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with the failing feed operation.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
