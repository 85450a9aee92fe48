package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by the quotes client when the API responds with HTTP 401 or 403.
// Callers can check for it using errors.Is to trigger token refresh or re-auth.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned when the API responds with HTTP 404.
var ErrNotFound = errors.New("not found")

// AuthExpiredError means the stored credentials can no longer be used and the
// user has to sign in again. It matches ErrUnauthorized through errors.Is.
type AuthExpiredError struct {
	Cause error
}

func (e *AuthExpiredError) Error() string {
	if e.Cause == nil {
		return "session expired: sign in again"
	}
	return fmt.Sprintf("session expired: sign in again: %v", e.Cause)
}

func (e *AuthExpiredError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrUnauthorized) true even when Cause is not ErrUnauthorized.
func (e *AuthExpiredError) Is(target error) bool {
	return target == ErrUnauthorized
}

// RemoteError is any other non-2xx answer from the API.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("API error (HTTP %d)", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}
