package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures surfaced by operations.
type ErrorKind string

const (
	KindInvalidInput             ErrorKind = "invalid_input"
	KindUnauthenticated          ErrorKind = "unauthenticated"
	KindRateLimited              ErrorKind = "rate_limited"
	KindUpstreamSoftBlock        ErrorKind = "upstream_soft_block"
	KindUpstreamTransportFailure ErrorKind = "upstream_transport_failure"
	KindUpstreamExhausted        ErrorKind = "upstream_exhausted"
	KindStorageFailure           ErrorKind = "storage_failure"
	KindNoRoute                  ErrorKind = "no_route"
	KindNoMatch                  ErrorKind = "no_match"
	KindInternal                 ErrorKind = "internal"
)

// ExhaustedMessage is returned to callers when every profile failed.
const ExhaustedMessage = "upstream unavailable, try again or enter manually"

// Error is the typed error returned by operations.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// InvalidInput builds a client input error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated builds a missing-identity error.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// RateLimited builds a rate limit rejection with a retry hint.
func RateLimited(endpoint string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded for %s", endpoint),
		RetryAfter: retryAfter,
	}
}

// SoftBlock marks a response judged unusable.
func SoftBlock(reason string) *Error {
	return &Error{Kind: KindUpstreamSoftBlock, Message: reason}
}

// TransportFailure wraps a network or timeout failure.
func TransportFailure(err error) *Error {
	return &Error{Kind: KindUpstreamTransportFailure, Message: "upstream transport failure", Err: err}
}

// Exhausted reports that no profile produced usable signal.
func Exhausted(operation string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamExhausted,
		Message: ExhaustedMessage,
		Details: map[string]any{"operation": operation},
		Err:     err,
	}
}

// StorageFailure wraps a backing store error.
func StorageFailure(err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: "storage unavailable", Err: err}
}

// ErrNoRoute is returned when no provider can route between the waypoints.
var ErrNoRoute = &Error{Kind: KindNoRoute, Message: "no route found"}

// ErrNoMatch is returned when a trace cannot be snapped onto the network.
var ErrNoMatch = &Error{Kind: KindNoMatch, Message: "no matching path found"}
