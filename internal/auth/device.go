package auth

import (
	"time"
)

const (
	// DefaultPollInterval is used when the server does not send an interval.
	DefaultPollInterval = 5 * time.Second
	// MinPollInterval is the lower bound applied to the server's interval.
	MinPollInterval = 2 * time.Second

	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// maxServerDuration bounds interval and expires_in values from a server.
	maxServerDuration = 365 * 24 * time.Hour
)

// seconds converts a server-supplied count of seconds, capped at maxServerDuration.
func seconds(n int64) time.Duration {
	if n > int64(maxServerDuration/time.Second) {
		return maxServerDuration
	}
	return time.Duration(n) * time.Second
}

// DeviceFlowSession holds one device authorization attempt.
// It lives only in memory and is owned by a single PollingScheduler.
type DeviceFlowSession struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	CreatedAt       time.Time
	// ExpiresIn is zero when the server did not say how long the code lives.
	ExpiresIn time.Duration
}

// Deadline returns when the device code expires. ok is false when unknown.
func (s DeviceFlowSession) Deadline() (deadline time.Time, ok bool) {
	if s.ExpiresIn <= 0 {
		return time.Time{}, false
	}
	return s.CreatedAt.Add(s.ExpiresIn), true
}

// deviceCodeResponse is the JSON body of the device authorization endpoint.
type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURL         string `json:"verification_url"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
	Error                   string `json:"error"`
	ErrorDescription        string `json:"error_description"`
}

func (r deviceCodeResponse) verificationURI() string {
	switch {
	case r.VerificationURIComplete != "":
		return r.VerificationURIComplete
	case r.VerificationURI != "":
		return r.VerificationURI
	default:
		return r.VerificationURL
	}
}

func (r deviceCodeResponse) interval() time.Duration {
	if r.Interval <= 0 {
		return DefaultPollInterval
	}
	d := seconds(r.Interval)
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

// tokenResponse is the JSON body of the token endpoint, success or failure.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
