// Package tokenstore persists the signed-in user's OAuth tokens across restarts.
package tokenstore

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenState is the persisted token record. It is always written as a whole.
type TokenState struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Empty reports whether the state holds no token at all.
func (s TokenState) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// Valid reports whether the access token can be used at now.
// A zero Expiry counts as already expired.
func (s TokenState) Valid(now time.Time) bool {
	if s.AccessToken == "" || s.Expiry.IsZero() {
		return false
	}
	return now.Before(s.Expiry)
}

// HasRefreshToken reports whether a refresh token is available.
func (s TokenState) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// WithoutAccessToken returns a copy with the access token and expiry removed.
func (s TokenState) WithoutAccessToken() TokenState {
	return TokenState{RefreshToken: s.RefreshToken}
}

// ToOAuth2Token converts the state to an oauth2.Token.
func (s TokenState) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.Expiry,
	}
}

// Store is the persistence port used by the authentication core.
type Store interface {
	// Load returns the current state. An expired access token is dropped while
	// the refresh token is kept. A missing or unreadable record is an empty state.
	Load() TokenState
	// Save replaces the whole record.
	Save(TokenState) error
	// Clear removes both tokens.
	Clear() error
}
