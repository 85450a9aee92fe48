// Package auth implements the OAuth2 device authorization grant client:
// device code acquisition, token polling, refresh and bearer authorization.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/tokenstore"
)

// CoreConfig holds the authorization server settings of a Core.
type CoreConfig struct {
	Credentials Credentials
	Endpoints   Endpoints
	// Scopes are requested when BeginDeviceAuthentication is called without any.
	Scopes []string
	// AuthenticateDeviceRequest sends Basic credentials on the device code request.
	AuthenticateDeviceRequest bool
}

// Prompt is what the user needs to approve a device authorization.
type Prompt struct {
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
}

// Completion is delivered once a device authorization attempt ends.
type Completion struct {
	Success bool
	Message string
	State   State
	Err     error
}

// flusher is implemented by stores that buffer state in memory.
type flusher interface {
	Flush() error
}

// Core owns the authentication components for one signed-in identity.
// It is created once and passed to everything that needs authorized calls.
type Core struct {
	cfg       CoreConfig
	store     tokenstore.Store
	initiator *DeviceFlowInitiator
	exchanger Exchanger
	refresher *TokenRefresher
	transport *AuthorizedTransport
	opts      []Option
	now       func() time.Time
	log       logrus.FieldLogger

	// begin serializes BeginDeviceAuthentication so at most one scheduler exists.
	begin sync.Mutex

	mu     sync.Mutex
	active *PollingScheduler
	// cancels counts CancelAuthentication calls; an attempt cancelled while its
	// device code is being requested is stopped as soon as it starts.
	cancels uint64
}

// NewCore validates cfg and builds the components. A missing client id or
// secret fails here, before any network call.
func NewCore(cfg CoreConfig, store tokenstore.Store, opts ...Option) (*Core, error) {
	if err := cfg.Credentials.Validate(true); err != nil {
		return nil, err
	}
	if err := cfg.Endpoints.Validate(); err != nil {
		return nil, err
	}
	exchanger := NewTokenExchanger(cfg.Credentials, cfg.Endpoints.TokenURL, cfg.Scopes, opts...)
	return newCore(cfg, store, exchanger, opts), nil
}

func newCore(cfg CoreConfig, store tokenstore.Store, exchanger Exchanger, opts []Option) *Core {
	o := buildOptions(opts)
	refresher := NewTokenRefresher(exchanger, store, opts...)
	return &Core{
		cfg:       cfg,
		store:     store,
		initiator: NewDeviceFlowInitiator(cfg.Credentials, cfg.Endpoints.DeviceAuthorizationURL, cfg.AuthenticateDeviceRequest, opts...),
		exchanger: exchanger,
		refresher: refresher,
		transport: NewAuthorizedTransport(store, refresher, opts...),
		opts:      opts,
		now:       o.now,
		log:       o.log.WithField("component", "auth"),
	}
}

// BeginDeviceAuthentication requests a device code and starts polling in the
// background. It returns as soon as the code is available; onComplete is called
// once from another goroutine when the attempt ends. Any attempt still running
// is cancelled first.
func (c *Core) BeginDeviceAuthentication(ctx context.Context, scopes []string, onComplete func(Completion)) (Prompt, error) {
	c.begin.Lock()
	defer c.begin.Unlock()

	c.CancelAuthentication()
	c.mu.Lock()
	cancels := c.cancels
	c.mu.Unlock()

	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	session, err := c.initiator.BeginDeviceFlow(ctx, scopes)
	if err != nil {
		return Prompt{}, err
	}

	sched := NewPollingScheduler(session, c.exchanger, c.store, c.opts...)
	// Polling outlives the request that started it but keeps its values.
	if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
		return Prompt{}, err
	}
	go func() {
		<-sched.Done()
		out := sched.Outcome()
		c.mu.Lock()
		if c.active == sched {
			c.active = nil
		}
		c.mu.Unlock()
		if onComplete != nil {
			onComplete(Completion{
				Success: out.State == StateAuthorized,
				Message: out.Message(),
				State:   out.State,
				Err:     out.Err,
			})
		}
	}()

	// A CancelAuthentication that ran during the device code request applies
	// to this attempt.
	c.mu.Lock()
	replaced := c.active
	cancelled := c.cancels != cancels
	c.active = nil
	if !cancelled && !finished(sched) {
		c.active = sched
	}
	c.mu.Unlock()
	if replaced != nil {
		replaced.Cancel()
	}
	if cancelled {
		sched.Cancel()
	}

	prompt := Prompt{UserCode: session.UserCode, VerificationURI: session.VerificationURI}
	if deadline, ok := session.Deadline(); ok {
		prompt.ExpiresAt = deadline
	}
	return prompt, nil
}

func finished(p *PollingScheduler) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

// CancelAuthentication stops the running device authorization, if any.
func (c *Core) CancelAuthentication() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.cancels++
	c.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
}

// Polling returns the running scheduler, or nil.
func (c *Core) Polling() *PollingScheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// GetAccessToken returns the current access token, or "" when there is none
// or it has expired. It never refreshes.
func (c *Core) GetAccessToken() string {
	st := c.store.Load()
	if !st.Valid(c.now()) {
		return ""
	}
	return st.AccessToken
}

// SignedIn reports whether any token, access or refresh, is stored.
func (c *Core) SignedIn() bool {
	return !c.store.Load().Empty()
}

// Status returns the stored token state with the expiry rule applied.
func (c *Core) Status() tokenstore.TokenState {
	return c.store.Load()
}

// Identity decodes the claims of the current access token.
func (c *Core) Identity() (Identity, error) {
	token := c.GetAccessToken()
	if token == "" {
		return Identity{}, &AuthenticationRequiredError{Reason: "no valid access token"}
	}
	return ParseIdentity(token)
}

// Transport returns the authorized transport used for API calls.
func (c *Core) Transport() *AuthorizedTransport {
	return c.transport
}

// Refresher returns the token refresher.
func (c *Core) Refresher() *TokenRefresher {
	return c.refresher
}

// Logout cancels any running attempt and clears the stored tokens.
func (c *Core) Logout() error {
	c.CancelAuthentication()
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.log.Info("signed out")
	return nil
}

// Close cancels any running attempt and writes the token state once more.
func (c *Core) Close() error {
	c.CancelAuthentication()
	if f, ok := c.store.(flusher); ok {
		return f.Flush()
	}
	return nil
}
