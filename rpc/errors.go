package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClientClosed is returned for calls issued after Close.
	ErrClientClosed = errors.New("rpc: client is closed")

	// ErrConnectionLost fails every outstanding request when a persistent
	// connection drops.
	ErrConnectionLost = errors.New("rpc: connection lost")

	// ErrQueueFull is returned when a request cannot be queued while the
	// connection is not open.
	ErrQueueFull = errors.New("rpc: send queue is full")
)

// RequestError is a well-formed JSON-RPC error response from the remote
// side. It carries the remote code and message so callers can tell a user
// rejection from a node fault.
type RequestError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d", e.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the remote JSON-RPC error code.
func (e *RequestError) ErrorCode() int { return e.Code }

// IsUserRejected reports whether the user declined the request in their
// wallet. Never retried.
func (e *RequestError) IsUserRejected() bool { return e.Code == CodeUserRejected }

// IsUnauthorized reports whether the caller lacks permission for the method.
func (e *RequestError) IsUnauthorized() bool { return e.Code == CodeUnauthorized }

// IsUnsupportedMethod reports whether the remote does not serve the method.
func (e *RequestError) IsUnsupportedMethod() bool {
	return e.Code == CodeUnsupportedMethod || e.Code == CodeMethodNotFound
}

// IsRateLimited reports whether the remote shed the request for load.
func (e *RequestError) IsRateLimited() bool { return e.Code == CodeLimitExceeded }

// TransportError is a network-level fault. Retryable errors were transient
// at the time they occurred; the transport retries them up to its bound and
// then surfaces the last one wrapped in a terminal TransportError.
type TransportError struct {
	Cause     error
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError is returned when a request is cancelled because it did not
// complete within the configured duration. Distinct from remote errors.
type TimeoutError struct {
	Method   string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc: %s timed out after %s", e.Method, e.Duration)
}

// SchemaValidationError reports params or a result that do not match the
// declared shape of a known method. A local bug, never retried.
type SchemaValidationError struct {
	Method string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("rpc: %s: %s", e.Method, e.Reason)
}

// isRetryable classifies an error for the retry loop. Codec and schema
// errors never land here; they propagate before the transport is involved.
func isRetryable(err error, retryableCodes []int) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var re *RequestError
	if errors.As(err, &re) {
		for _, code := range retryableCodes {
			if re.Code == code {
				return true
			}
		}
	}
	return false
}
