package llm

import (
	"context"
	"errors"
)

// ErrorCode aligns client errors with retryability and failover policy.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"
	ErrContentFiltered ErrorCode = "LLM_CONTENT_FILTERED"
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"
)

// Error is the unified model client error.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	// Backend identifies the client that produced the error.
	Backend string `json:"backend,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// IsContentFiltered reports whether the error is a content-policy
// verdict. Such failures are never retried on another backend: a
// different model will not change a policy decision.
func IsContentFiltered(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Code == ErrContentFiltered
}

// IsTransient reports whether the failure may be resolved by retrying on
// another backend (timeouts, rate limits, upstream 5xx).
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var le *Error
	if !errors.As(err, &le) {
		return false
	}
	switch le.Code {
	case ErrUpstreamTimeout, ErrUpstreamError, ErrRateLimited:
		return true
	}
	return le.Retryable
}
