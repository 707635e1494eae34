package models

import (
	"context"
	"errors"
)

// ErrorKind is the stable error taxonomy shared by the core and the API edge.
// Kinds are wire-stable strings: subscribers and REST clients branch on them.
type ErrorKind string

const (
	ErrKindInvalidInput         ErrorKind = "invalid_input"
	ErrKindNotFound             ErrorKind = "not_found"
	ErrKindNoAgentsAvailable    ErrorKind = "no_agents_available"
	ErrKindKnowledgeUnavailable ErrorKind = "knowledge_unavailable"
	ErrKindProviderError        ErrorKind = "provider_error"
	ErrKindRateLimited          ErrorKind = "rate_limited"
	ErrKindTimeout              ErrorKind = "timeout"
	ErrKindPoolExhausted        ErrorKind = "pool_exhausted"
	ErrKindCancelled            ErrorKind = "cancelled"
	ErrKindPartialFailure       ErrorKind = "partial_failure"
	ErrKindInternal             ErrorKind = "internal"
)

// Retriable reports whether an outbound call that failed with this kind may
// be retried. Only provider backpressure and timeouts qualify; everything
// else is either permanent or must surface to the caller.
func (k ErrorKind) Retriable() bool {
	return k == ErrKindRateLimited || k == ErrKindTimeout
}

// Fatal reports whether the kind aborts the whole execution rather than a
// single sub-operation.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrKindInvalidInput, ErrKindNoAgentsAvailable, ErrKindInternal:
		return true
	}
	return false
}

// KindError pairs an ErrorKind with a human-readable message. It is the
// only error type that crosses component boundaries.
type KindError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *KindError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewKindError creates a KindError with a message.
func NewKindError(kind ErrorKind, message string) *KindError {
	return &KindError{Kind: kind, Message: message}
}

// WrapKind wraps an underlying error with a kind.
func WrapKind(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Context expiry maps to timeout/cancelled; unclassified errors map to internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	return ErrKindInternal
}
