package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError marks malformed input. Surfaced directly, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

// NotFoundError marks a missing or foreign-owned resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// RateLimitError marks an exceeded request quota. RetryAfter is the number
// of seconds until the window resets.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
}

// UpstreamError marks a failed or errored upstream fetch. Timeout flags the
// deadline-exceeded variant, which callers may treat as transient.
type UpstreamError struct {
	Msg     string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error: %s: %v", e.Msg, e.Err)
	}
	return "upstream error: " + e.Msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DispatchError marks a failed notification delivery. Transient failures
// (network, provider 5xx) may be retried on the next cycle; permanent ones
// (unknown chat, bot blocked) will not succeed without user action.
type DispatchError struct {
	Msg       string
	Transient bool
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch error: %s: %v", e.Msg, e.Err)
	}
	return "dispatch error: " + e.Msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsRateLimit(err error) bool {
	var r *RateLimitError
	return errors.As(err, &r)
}

func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}

func IsDispatch(err error) bool {
	var d *DispatchError
	return errors.As(err, &d)
}
