package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Credentials identify the client application to the authorization server.
// They are read once at startup and never change.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Validate fails when the client id is missing, or when requireSecret is set
// and the secret is missing.
func (c Credentials) Validate(requireSecret bool) error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &ConfigurationError{Field: "client_id", Reason: "is not set"}
	}
	if requireSecret && c.ClientSecret == "" {
		return &ConfigurationError{Field: "client_secret", Reason: "is not set (export QUOTEDECK_CLIENT_SECRET)"}
	}
	return nil
}

// BasicAuth returns the base64 encoding of "client_id:client_secret".
func (c Credentials) BasicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
}

func (c Credentials) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Basic "+c.BasicAuth())
}

// Endpoints are the absolute URLs of the authorization server.
type Endpoints struct {
	DeviceAuthorizationURL string
	TokenURL               string
}

// Validate fails when either URL is empty.
func (e Endpoints) Validate() error {
	if e.DeviceAuthorizationURL == "" {
		return &ConfigurationError{Field: "device_authorization_url", Reason: "is not set"}
	}
	if e.TokenURL == "" {
		return &ConfigurationError{Field: "token_url", Reason: "is not set"}
	}
	return nil
}
