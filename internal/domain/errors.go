// Package domain provides the canonical request/response contract shared by
// all provider adapters, and the closed error taxonomy that drives retry
// policy.
package domain

import "fmt"

// ErrorKind classifies why a call attempt failed. The set is closed; any
// unrecognized failure resolves to ErrorKindUnknown rather than propagating
// an untyped error.
type ErrorKind string

const (
	ErrorKindAuthInvalid       ErrorKind = "auth_invalid"
	ErrorKindQuotaExceeded     ErrorKind = "quota_exceeded"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindContentRejected   ErrorKind = "content_rejected"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindServerUnavailable ErrorKind = "server_unavailable"
	ErrorKindMalformedRequest  ErrorKind = "malformed_request"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
	ErrorKindCancelled         ErrorKind = "cancelled"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// Retryable reports whether an attempt that failed with this kind may be
// retried. ErrorKindUnknown has its own conservative budget and is handled
// separately by the dispatcher.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindContentRejected, ErrorKindTimeout, ErrorKindServerUnavailable:
		return true
	default:
		return false
	}
}

// CallError is a classified backend failure. It tags exactly one failed
// attempt.
type CallError struct {
	// Kind is the classified failure category.
	Kind ErrorKind

	// Provider is the configured name of the provider that failed.
	Provider string

	// StatusCode is the upstream HTTP status, if the failure came from an
	// HTTP response.
	StatusCode int

	// Message is the human-readable cause.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError creates a classified call error.
func NewCallError(kind ErrorKind, provider, message string) *CallError {
	return &CallError{Kind: kind, Provider: provider, Message: message}
}

// WithStatus sets the upstream HTTP status code.
func (e *CallError) WithStatus(code int) *CallError {
	e.StatusCode = code
	return e
}

// WithCause sets the underlying error.
func (e *CallError) WithCause(err error) *CallError {
	e.Err = err
	return e
}
