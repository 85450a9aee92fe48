package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthRequired matches every AuthenticationRequiredError through errors.Is.
var ErrAuthRequired = errors.New("authentication required")

// ConfigurationError reports missing or invalid client configuration.
// It is raised before any network call is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// ProtocolError reports a response the client cannot interpret: a malformed body,
// a missing required field, or an unexpected HTTP status.
type ProtocolError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *ProtocolError) Error() string {
	msg := e.Op + ": unexpected response"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports a network failure or timeout. It is retryable at the
// polling layer and surfaced as-is everywhere else.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationRequiredError means no usable access token exists and the user
// has to run the device flow again.
type AuthenticationRequiredError struct {
	Reason string
	Err    error
}

func (e *AuthenticationRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication required: %s: %v", e.Reason, e.Err)
	}
	return "authentication required: " + e.Reason
}

func (e *AuthenticationRequiredError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuthRequired) true.
func (e *AuthenticationRequiredError) Is(target error) bool {
	return target == ErrAuthRequired
}

// NoRefreshTokenError is returned by Refresh when the store holds no refresh token.
type NoRefreshTokenError struct{}

func (e *NoRefreshTokenError) Error() string { return "no refresh token stored" }

// RefreshFailedError wraps the failure of a refresh-token exchange.
// Cleared reports whether the stored tokens were discarded as a result.
type RefreshFailedError struct {
	Failure *Failure
	Err     error
	Cleared bool
}

func (e *RefreshFailedError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("refreshing token: %v", e.Err)
	case e.Failure != nil:
		return fmt.Sprintf("refreshing token: %s", e.Failure)
	default:
		return "refreshing token failed"
	}
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the failed exchange, or 0 when unknown.
func (e *RefreshFailedError) StatusCode() int {
	if e.Failure != nil {
		return e.Failure.StatusCode
	}
	var pe *ProtocolError
	if errors.As(e.Err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// invalidatesGrant reports whether status means the refresh token is permanently rejected.
func invalidatesGrant(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
