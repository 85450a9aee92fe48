package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/quotedeck/internal/auth"
)

var testCreds = auth.Credentials{ClientID: "quotedeck-cli", ClientSecret: "s3cret"}

func deviceServer(t *testing.T, status int, body map[string]interface{}, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBeginDeviceFlow_ParsesSession(t *testing.T) {
	clock := newFakeClock()
	server := deviceServer(t, http.StatusOK, map[string]interface{}{
		"device_code":               "dev-abc",
		"user_code":                 "WDJB-MJHT",
		"verification_uri":          "https://auth.example.com/device",
		"verification_uri_complete": "https://auth.example.com/device?user_code=WDJB-MJHT",
		"expires_in":                900,
		"interval":                  8,
	}, func(r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "quotedeck-cli", r.PostForm.Get("client_id"))
		assert.Equal(t, "quotes:read quotes:write", r.PostForm.Get("scope"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "quotedeck-cli", id)
		assert.Equal(t, "s3cret", secret)
	})

	initiator := auth.NewDeviceFlowInitiator(testCreds, server.URL, true, auth.WithClock(clock.Now))
	session, err := initiator.BeginDeviceFlow(context.Background(), []string{"quotes:read", "quotes:write"})

	require.NoError(t, err)
	assert.Equal(t, "dev-abc", session.DeviceCode)
	assert.Equal(t, "WDJB-MJHT", session.UserCode)
	assert.Equal(t, "https://auth.example.com/device?user_code=WDJB-MJHT", session.VerificationURI)
	assert.Equal(t, 8*time.Second, session.Interval)
	assert.Equal(t, 900*time.Second, session.ExpiresIn)
	deadline, ok := session.Deadline()
	assert.True(t, ok)
	assert.True(t, deadline.Equal(t0.Add(900*time.Second)))
}

func TestBeginDeviceFlow_PublicClientSendsNoBasicAuth(t *testing.T) {
	server := deviceServer(t, http.StatusOK, map[string]interface{}{
		"device_code":      "d",
		"user_code":        "u",
		"verification_url": "https://auth.example.com/activate",
	}, func(r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
	})

	initiator := auth.NewDeviceFlowInitiator(auth.Credentials{ClientID: "public"}, server.URL, false)
	session, err := initiator.BeginDeviceFlow(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/activate", session.VerificationURI)
	assert.Equal(t, auth.DefaultPollInterval, session.Interval)
	_, ok := session.Deadline()
	assert.False(t, ok)
}

func TestBeginDeviceFlow_ClampsInterval(t *testing.T) {
	server := deviceServer(t, http.StatusOK, map[string]interface{}{
		"device_code": "d", "user_code": "u", "verification_uri": "https://x", "interval": 1,
	}, nil)

	session, err := auth.NewDeviceFlowInitiator(testCreds, server.URL, false).BeginDeviceFlow(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, auth.MinPollInterval, session.Interval)
}

func TestBeginDeviceFlow_HugeValuesDoNotOverflow(t *testing.T) {
	server := deviceServer(t, http.StatusOK, map[string]interface{}{
		"device_code": "d", "user_code": "u", "verification_uri": "https://x",
		"interval": int64(math.MaxInt64), "expires_in": int64(math.MaxInt64),
	}, nil)

	session, err := auth.NewDeviceFlowInitiator(testCreds, server.URL, false).BeginDeviceFlow(context.Background(), nil)

	require.NoError(t, err)
	assert.Greater(t, session.Interval, 24*time.Hour)
	assert.Greater(t, session.ExpiresIn, 24*time.Hour)
	deadline, ok := session.Deadline()
	require.True(t, ok)
	assert.True(t, deadline.After(session.CreatedAt))
}

func TestBeginDeviceFlow_MissingRequiredFieldIsProtocolError(t *testing.T) {
	full := map[string]interface{}{
		"device_code":      "d",
		"user_code":        "u",
		"verification_uri": "https://x",
	}
	for _, field := range []string{"device_code", "user_code", "verification_uri"} {
		t.Run(field, func(t *testing.T) {
			body := map[string]interface{}{}
			for k, v := range full {
				if k != field {
					body[k] = v
				}
			}
			server := deviceServer(t, http.StatusOK, body, nil)

			_, err := auth.NewDeviceFlowInitiator(testCreds, server.URL, false).BeginDeviceFlow(context.Background(), nil)

			var pe *auth.ProtocolError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Contains(t, pe.Error(), field)
		})
	}
}

func TestBeginDeviceFlow_ErrorStatusIsProtocolError(t *testing.T) {
	server := deviceServer(t, http.StatusUnauthorized, map[string]interface{}{
		"error":             "invalid_client",
		"error_description": "unknown client",
	}, nil)

	_, err := auth.NewDeviceFlowInitiator(testCreds, server.URL, true).BeginDeviceFlow(context.Background(), nil)

	var pe *auth.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, "invalid_client", pe.Code)
}

func TestBeginDeviceFlow_NetworkFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := auth.NewDeviceFlowInitiator(testCreds, url, false).BeginDeviceFlow(context.Background(), nil)

	var te *auth.TransportError
	assert.True(t, errors.As(err, &te), "got %v", err)
}

func TestBeginDeviceFlow_MissingSecretFailsBeforeRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := auth.NewDeviceFlowInitiator(auth.Credentials{ClientID: "x"}, server.URL, true).BeginDeviceFlow(context.Background(), nil)

	var ce *auth.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "client_secret", ce.Field)
	assert.Equal(t, int32(0), calls.Load())
}
