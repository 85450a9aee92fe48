package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps how much of an authorization server response is read.
const maxBodyBytes = 1 << 20

// DeviceFlowInitiator requests device codes from the authorization server.
type DeviceFlowInitiator struct {
	creds        Credentials
	endpoint     string
	authenticate bool
	client       *http.Client
	now          func() time.Time
	log          logrus.FieldLogger
}

// NewDeviceFlowInitiator creates an initiator for endpoint. When authenticate is
// set the request carries the client's Basic credentials; servers that accept
// public clients at this step do not need them.
func NewDeviceFlowInitiator(creds Credentials, endpoint string, authenticate bool, opts ...Option) *DeviceFlowInitiator {
	o := buildOptions(opts)
	return &DeviceFlowInitiator{
		creds:        creds,
		endpoint:     endpoint,
		authenticate: authenticate,
		client:       o.client,
		now:          o.now,
		log:          o.log.WithField("component", "device-initiator"),
	}
}

// BeginDeviceFlow requests a device code and user code for scopes.
// The returned session's UserCode must be shown to the user along with VerificationURI.
// Network failures are returned as *TransportError and are not retried here.
func (i *DeviceFlowInitiator) BeginDeviceFlow(ctx context.Context, scopes []string) (DeviceFlowSession, error) {
	if err := i.creds.Validate(i.authenticate); err != nil {
		return DeviceFlowSession{}, err
	}

	data := url.Values{}
	data.Set("client_id", i.creds.ClientID)
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return DeviceFlowSession{}, &ConfigurationError{Field: "device_authorization_url", Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if i.authenticate {
		i.creds.authorize(req)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return DeviceFlowSession{}, &TransportError{Op: "requesting device code", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return DeviceFlowSession{}, &TransportError{Op: "reading device code response", Err: err}
	}

	var raw deviceCodeResponse
	decodeErr := json.Unmarshal(body, &raw)
	if resp.StatusCode != http.StatusOK {
		return DeviceFlowSession{}, &ProtocolError{
			Op:          "requesting device code",
			StatusCode:  resp.StatusCode,
			Code:        raw.Error,
			Description: raw.ErrorDescription,
		}
	}
	if decodeErr != nil {
		return DeviceFlowSession{}, &ProtocolError{Op: "decoding device code response", StatusCode: resp.StatusCode, Err: decodeErr}
	}

	var missing []string
	if raw.DeviceCode == "" {
		missing = append(missing, "device_code")
	}
	if raw.UserCode == "" {
		missing = append(missing, "user_code")
	}
	if raw.verificationURI() == "" {
		missing = append(missing, "verification_uri")
	}
	if len(missing) > 0 {
		return DeviceFlowSession{}, &ProtocolError{
			Op:         "decoding device code response",
			StatusCode: resp.StatusCode,
			Err:        errors.New("missing " + strings.Join(missing, ", ")),
		}
	}

	session := DeviceFlowSession{
		DeviceCode:      raw.DeviceCode,
		UserCode:        raw.UserCode,
		VerificationURI: raw.verificationURI(),
		Interval:        raw.interval(),
		CreatedAt:       i.now(),
	}
	if raw.ExpiresIn > 0 {
		session.ExpiresIn = seconds(raw.ExpiresIn)
	}
	i.log.WithFields(logrus.Fields{
		"interval":   session.Interval.String(),
		"expires_in": session.ExpiresIn.String(),
	}).Debug("device code issued")
	return session, nil
}
