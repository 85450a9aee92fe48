package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// ErrorCode is the OAuth error code of a failed token exchange.
// Codes not known to this client map to CodeOther, which callers treat as fatal.
type ErrorCode int

const (
	CodeOther ErrorCode = iota
	CodeAuthorizationPending
	CodeSlowDown
	CodeExpiredToken
	CodeAccessDenied
	CodeInvalidGrant
	CodeInvalidClient
	CodeInvalidRequest
	CodeUnauthorizedClient
	CodeInvalidScope
)

var errorCodeNames = map[ErrorCode]string{
	CodeAuthorizationPending: "authorization_pending",
	CodeSlowDown:             "slow_down",
	CodeExpiredToken:         "expired_token",
	CodeAccessDenied:         "access_denied",
	CodeInvalidGrant:         "invalid_grant",
	CodeInvalidClient:        "invalid_client",
	CodeInvalidRequest:       "invalid_request",
	CodeUnauthorizedClient:   "unauthorized_client",
	CodeInvalidScope:         "invalid_scope",
}

// ParseErrorCode maps the wire value of the error field.
func ParseErrorCode(s string) ErrorCode {
	for code, name := range errorCodeNames {
		if name == s {
			return code
		}
	}
	return CodeOther
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "other"
}

// Success carries the tokens of a successful exchange.
// RefreshToken is empty when the server did not issue or rotate one.
type Success struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Failure carries an OAuth error answer.
type Failure struct {
	Code        ErrorCode
	RawCode     string
	Description string
	StatusCode  int
}

func (f *Failure) String() string {
	msg := f.RawCode
	if f.Description != "" {
		msg += ": " + f.Description
	}
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", f.StatusCode)
	}
	return msg
}

// TokenResult is either a Success or a Failure; exactly one is set.
type TokenResult struct {
	Success *Success
	Failure *Failure
}

// OK reports whether the exchange produced tokens.
func (r TokenResult) OK() bool { return r.Success != nil }

// Exchanger obtains tokens from the token endpoint.
// Expected OAuth errors come back as a Failure result; the error return is
// reserved for transport, protocol and configuration problems.
type Exchanger interface {
	ExchangeDeviceCode(ctx context.Context, deviceCode string) (TokenResult, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenResult, error)
}

// TokenExchanger talks to the token endpoint with HTTP Basic client authentication.
type TokenExchanger struct {
	creds    Credentials
	tokenURL string
	scopes   []string
	client   *http.Client
	log      logrus.FieldLogger
}

// Ensure TokenExchanger implements Exchanger.
var _ Exchanger = (*TokenExchanger)(nil)

// NewTokenExchanger creates an exchanger. scopes are sent with refresh requests.
func NewTokenExchanger(creds Credentials, tokenURL string, scopes []string, opts ...Option) *TokenExchanger {
	o := buildOptions(opts)
	return &TokenExchanger{
		creds:    creds,
		tokenURL: tokenURL,
		scopes:   scopes,
		client:   o.client,
		log:      o.log.WithField("component", "token-exchanger"),
	}
}

// ExchangeDeviceCode asks whether the user has approved deviceCode yet.
func (x *TokenExchanger) ExchangeDeviceCode(ctx context.Context, deviceCode string) (TokenResult, error) {
	data := url.Values{}
	data.Set("grant_type", deviceCodeGrantType)
	data.Set("device_code", deviceCode)
	data.Set("client_id", x.creds.ClientID)
	return x.exchange(ctx, "exchanging device code", data)
}

// ExchangeRefreshToken trades refreshToken for a new access token.
func (x *TokenExchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenResult, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", x.creds.ClientID)
	if len(x.scopes) > 0 {
		data.Set("scope", strings.Join(x.scopes, " "))
	}
	return x.exchange(ctx, "refreshing token", data)
}

func (x *TokenExchanger) exchange(ctx context.Context, op string, data url.Values) (TokenResult, error) {
	if err := x.creds.Validate(true); err != nil {
		return TokenResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return TokenResult{}, &ConfigurationError{Field: "token_url", Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	x.creds.authorize(req)

	resp, err := x.client.Do(req)
	if err != nil {
		return TokenResult{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return TokenResult{}, &TransportError{Op: op, Err: err}
	}
	x.log.WithField("status", resp.StatusCode).Debug(op)
	return parseTokenResponse(op, resp.StatusCode, body)
}

// parseTokenResponse classifies a token endpoint answer. A body with an error
// field is a Failure whatever the status, since some servers answer 200.
func parseTokenResponse(op string, status int, body []byte) (TokenResult, error) {
	var raw tokenResponse
	decodeErr := json.Unmarshal(body, &raw)

	if decodeErr == nil && raw.Error != "" {
		return TokenResult{Failure: &Failure{
			Code:        ParseErrorCode(raw.Error),
			RawCode:     raw.Error,
			Description: raw.ErrorDescription,
			StatusCode:  status,
		}}, nil
	}
	if status != http.StatusOK {
		return TokenResult{}, &ProtocolError{Op: op, StatusCode: status, Err: decodeErr}
	}
	if decodeErr != nil {
		return TokenResult{}, &ProtocolError{Op: op, StatusCode: status, Err: decodeErr}
	}
	if raw.AccessToken == "" {
		return TokenResult{}, &ProtocolError{Op: op, StatusCode: status, Err: errors.New("response has neither access_token nor error")}
	}

	lifetime := DefaultTokenLifetime
	if raw.ExpiresIn > 0 {
		lifetime = seconds(raw.ExpiresIn)
	}
	return TokenResult{Success: &Success{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		ExpiresIn:    lifetime,
	}}, nil
}
