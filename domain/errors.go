package domain

import (
	"errors"
	"fmt"
)

// ErrMaxRetriesExceeded is terminal: the subscription stops reconnecting until it is
// subscribed again.
var ErrMaxRetriesExceeded = errors.New("max reconnect retries exceeded")

var ErrUnsupportedInterval = errors.New("unsupported kline interval")

// SnapshotError reports a failed one-shot depth snapshot fetch.
type SnapshotError struct {
	Symbol string
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("order book snapshot for %s: %v", e.Symbol, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// HistoryError reports a failed one-shot historical candle fetch.
type HistoryError struct {
	Symbol   string
	Interval string
	Err      error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("candle history for %s/%s: %v", e.Symbol, e.Interval, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// DecodeError reports a malformed stream payload. The stream keeps running.
type DecodeError struct {
	Topic   string
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConnectionError reports a transport failure. It triggers the reconnect policy.
type ConnectionError struct {
	Topic   string
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s (attempt %d): %v", e.Topic, e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
