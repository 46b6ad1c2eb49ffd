package eventcache

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired is returned by a Transport when the upstream rejects a
	// sync token. The Fetcher recovers from it with a full fetch.
	ErrTokenExpired = errors.New("sync token expired")

	// ErrBatchUnsupported means the configured Transport cannot send batched
	// requests. The Engine falls back to parallel single fetches.
	ErrBatchUnsupported = errors.New("transport does not support batch requests")
)

// ProtocolError reports a batch response that could not be decoded as a whole.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch protocol error: %s: %v", e.Reason, e.Err)
	}
	return "batch protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// APIError is a failed sub-request inside an otherwise successful batch.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// FetchError wraps a full-fetch failure for a single calendar.
type FetchError struct {
	ResourceID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch events for calendar %s: %v", e.ResourceID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
