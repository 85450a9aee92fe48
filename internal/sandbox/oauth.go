package sandbox

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/waabox/quotedeck/internal/logging"
)

const (
	deviceGrantType  = "urn:ietf:params:oauth:grant-type:device_code"
	refreshGrantType = "refresh_token"
	userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"
)

type device struct {
	userCode  string
	scope     string
	expiresAt time.Time
	interval  time.Duration
	lastPoll  time.Time
	polls     int
	approved  bool
	denied    bool
}

type deviceCodeRequest struct {
	ClientID string `schema:"client_id"`
	Scope    string `schema:"scope"`
}

// approvalForm is posted by the /device page. Action "deny" denies, anything else approves.
type approvalForm struct {
	UserCode string `schema:"user_code,required"`
	Action   string `schema:"action"`
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if !s.clientAllowed(w, r, false) {
		return
	}

	var req deviceCodeRequest
	if err := s.forms.Decode(&req, r.PostForm); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	deviceCode := uuid.NewString()
	userCode := newUserCode()
	d := &device{
		userCode:  userCode,
		scope:     req.Scope,
		expiresAt: s.opts.Now().Add(s.opts.CodeTTL),
		interval:  s.opts.Interval,
	}

	s.mu.Lock()
	s.devices[deviceCode] = d
	s.userCodes[userCode] = deviceCode
	s.mu.Unlock()

	verification := "http://" + r.Host + "/device"
	logging.FromContext(r.Context(), s.log).WithField("user_code", userCode).Info("device code issued")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_code":               deviceCode,
		"user_code":                 userCode,
		"verification_uri":          verification,
		"verification_uri_complete": verification + "?user_code=" + userCode,
		"expires_in":                int(s.opts.CodeTTL / time.Second),
		"interval":                  int(s.opts.Interval / time.Second),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if !s.clientAllowed(w, r, true) {
		return
	}

	switch grant := r.PostForm.Get("grant_type"); grant {
	case deviceGrantType:
		s.deviceGrant(w, r)
	case refreshGrantType:
		s.refreshGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("grant type %q is not supported", grant))
	}
}

func (s *Server) deviceGrant(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("device_code")
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[code]
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown device code")
		return
	}
	if now.After(d.expiresAt) {
		s.forgetDeviceLocked(code)
		writeOAuthError(w, http.StatusBadRequest, "expired_token", "the device code has expired")
		return
	}
	if s.opts.EnforceInterval && !d.lastPoll.IsZero() && now.Sub(d.lastPoll) < d.interval {
		d.interval += slowDownIncrease
		d.lastPoll = now
		writeOAuthError(w, http.StatusBadRequest, "slow_down", "")
		return
	}
	d.lastPoll = now
	d.polls++

	if d.denied {
		s.forgetDeviceLocked(code)
		writeOAuthError(w, http.StatusBadRequest, "access_denied", "the user denied the request")
		return
	}
	if !d.approved && s.opts.AutoApprove && d.polls > s.opts.PendingPolls {
		d.approved = true
	}
	if !d.approved {
		writeOAuthError(w, http.StatusBadRequest, "authorization_pending", "")
		return
	}

	s.forgetDeviceLocked(code)
	resp, err := s.issueLocked(d.scope)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	refresh := r.PostForm.Get("refresh_token")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.refreshTokens[refresh] {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or revoked")
		return
	}
	delete(s.refreshTokens, refresh)
	resp, err := s.issueLocked(r.PostForm.Get("scope"))
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// issueLocked mints a signed access token and a rotated refresh token.
func (s *Server) issueLocked(scope string) (map[string]interface{}, error) {
	now := s.opts.Now()
	exp := now.Add(s.opts.TokenTTL)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   "quotedeck-sandbox",
		"sub":   s.opts.User.Subject,
		"name":  s.opts.User.Name,
		"email": s.opts.User.Email,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	}).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh := uuid.NewString()
	s.accessTokens[access] = exp
	s.refreshTokens[refresh] = true

	resp := map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(s.opts.TokenTTL / time.Second),
	}
	if scope != "" {
		resp["scope"] = scope
	}
	return resp, nil
}

func (s *Server) forgetDeviceLocked(code string) {
	if d, ok := s.devices[code]; ok {
		delete(s.userCodes, d.userCode)
	}
	delete(s.devices, code)
}

// clientAllowed checks the client credentials and writes invalid_client when
// they are wrong. The secret is only checked when requireSecret is set.
func (s *Server) clientAllowed(w http.ResponseWriter, r *http.Request, requireSecret bool) bool {
	if requireSecret && s.opts.ClientSecret != "" {
		id, secret, ok := r.BasicAuth()
		if !ok || id != s.opts.ClientID || secret != s.opts.ClientSecret {
			w.Header().Set("WWW-Authenticate", `Basic realm="quotedeck-sandbox"`)
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return false
		}
		return true
	}
	if s.opts.ClientID != "" {
		id := r.PostForm.Get("client_id")
		if basicID, _, ok := r.BasicAuth(); ok {
			id = basicID
		}
		if id != s.opts.ClientID {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
			return false
		}
	}
	return true
}

// Approve grants the device waiting on userCode.
func (s *Server) Approve(userCode string) error {
	return s.decide(userCode, true)
}

// Deny rejects the device waiting on userCode.
func (s *Server) Deny(userCode string) error {
	return s.decide(userCode, false)
}

func (s *Server) decide(userCode string, approve bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.userCodes[strings.ToUpper(strings.TrimSpace(userCode))]
	if !ok {
		return fmt.Errorf("unknown user code %q", userCode)
	}
	d := s.devices[code]
	d.approved = approve
	d.denied = !approve
	s.log.WithField("user_code", d.userCode).WithField("approved", approve).Info("device decision recorded")
	return nil
}

func (s *Server) handleVerificationPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	code := r.URL.Query().Get("user_code")
	if code == "" {
		code = "<user code>"
	}
	fmt.Fprintf(w, "quotedeck sandbox\n\nApprove the device with:\n  curl -X POST -d user_code=%s http://%s/device/approve\n\nDeny it with:\n  curl -X POST -d user_code=%s -d action=deny http://%s/device/approve\n",
		code, r.Host, code, r.Host)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	var form approvalForm
	if err := s.forms.Decode(&form, r.PostForm); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.decide(form.UserCode, form.Action != "deny"); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newUserCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("sandbox: reading random bytes: %v", err))
	}
	code := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, userCodeAlphabet[int(b)%len(userCodeAlphabet)])
	}
	return string(code)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, oauthError{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
