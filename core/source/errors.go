package source

import (
	"errors"
	"fmt"
)

// AuthError signals that the upstream credential is invalid or expired and
// cannot be refreshed. It is not retried automatically; re-authorization is
// an out-of-band operation.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication required: %s", e.Msg) }

// UnavailableError signals a temporarily unreachable upstream device, such
// as a vehicle that is asleep. Non-fatal: sources degrade to cached data.
type UnavailableError struct {
	Msg string
}

func (e *UnavailableError) Error() string { return fmt.Sprintf("source unavailable: %s", e.Msg) }

// RateLimitError signals upstream throttling.
type RateLimitError struct {
	Msg string
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("rate limited: %s", e.Msg) }

// TransientError signals a 5xx-class upstream failure worth retrying.
type TransientError struct {
	StatusCode int
	Msg        string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Msg)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsRateLimit reports whether err is a RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Kind returns a stable short name for the error class, used when recording
// failures to the history store and metric sinks.
func Kind(err error) string {
	switch {
	case IsAuth(err):
		return "auth_error"
	case IsUnavailable(err):
		return "source_unavailable"
	case IsRateLimit(err):
		return "rate_limited"
	case IsTransient(err):
		return "server_error"
	default:
		return "fetch_error"
	}
}
