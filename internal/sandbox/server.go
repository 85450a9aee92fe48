// Package sandbox is a local authorization server and quotes API. It speaks
// the device authorization grant and the refresh grant, and serves an in-memory
// quotes API behind bearer tokens, so the CLI can be tried without a real backend.
package sandbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/logging"
)

const (
	DeviceAuthorizationPath = "/oauth/device/code"
	TokenPath               = "/oauth/token"
	APIPrefix               = "/v1"

	defaultTokenTTL  = time.Hour
	defaultCodeTTL   = 10 * time.Minute
	defaultInterval  = 5 * time.Second
	slowDownIncrease = 5 * time.Second
)

// User is the identity every approved device signs in as.
type User struct {
	Subject string
	Name    string
	Email   string
}

// Options configures a Server.
type Options struct {
	ClientID string
	// ClientSecret, when set, is required as HTTP Basic credentials on the token endpoint.
	ClientSecret string
	TokenTTL     time.Duration
	CodeTTL      time.Duration
	Interval     time.Duration
	// AutoApprove approves every device after PendingPolls authorization_pending answers.
	AutoApprove  bool
	PendingPolls int
	// EnforceInterval answers slow_down to polls that arrive before the interval elapsed.
	EnforceInterval bool
	User            User
	Logger          logrus.FieldLogger
	Now             func() time.Time
}

// Server holds all sandbox state in memory.
type Server struct {
	opts   Options
	log    logrus.FieldLogger
	key    []byte
	router *mux.Router
	forms  *schema.Decoder

	mu            sync.Mutex
	devices       map[string]*device
	userCodes     map[string]string
	accessTokens  map[string]time.Time
	refreshTokens map[string]bool
	orgs          []domain.Organization
	quotes        map[string]*domain.Quote
	idempotency   map[string]string
	sequence      int
}

// New creates a sandbox seeded with demo organizations and quotes.
func New(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = defaultCodeTTL
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.User.Subject == "" {
		opts.User = User{Subject: "user-1", Name: "Sandbox User", Email: "sandbox@quotedeck.local"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("sandbox: reading random key: %v", err))
	}

	s := &Server{
		opts:          opts,
		log:           opts.Logger.WithField("component", "sandbox"),
		key:           key,
		devices:       make(map[string]*device),
		userCodes:     make(map[string]string),
		accessTokens:  make(map[string]time.Time),
		refreshTokens: make(map[string]bool),
		quotes:        make(map[string]*domain.Quote),
		idempotency:   make(map[string]string),
	}
	s.seed()
	s.forms = schema.NewDecoder()
	s.forms.IgnoreUnknownKeys(true)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc(DeviceAuthorizationPath, s.handleDeviceCode).Methods(http.MethodPost)
	r.HandleFunc(TokenPath, s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/device", s.handleVerificationPage).Methods(http.MethodGet)
	r.HandleFunc("/device/approve", s.handleApprove).Methods(http.MethodPost)

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(s.requireBearer)
	api.HandleFunc("/organizations", s.handleListOrganizations).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{org}/quotes", s.handleListQuotes).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{org}/quotes", s.handleCreateQuote).Methods(http.MethodPost)
	api.HandleFunc("/quotes/{id}", s.handleGetQuote).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{id}", s.handleDeleteQuote).Methods(http.MethodDelete)
	return r
}

// Handler returns the HTTP handler serving every sandbox route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled. ready, when not nil,
// receives the bound address once the listener is open.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down sandbox: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// RevokeAccessTokens makes the API reject every access token issued so far,
// while refresh tokens keep working.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]time.Time)
}

// RevokeRefreshTokens makes every refresh token invalid.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]bool)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		entry := s.log.WithField("request_id", requestID)
		r = r.WithContext(logging.WithLogger(r.Context(), entry))

		m := httpsnoop.CaptureMetrics(next, w, r)

		entry.WithFields(logrus.Fields{
			"method":   r.Method,
			"uri":      r.URL.Path,
			"status":   m.Code,
			"size":     m.Written,
			"duration": fmt.Sprintf("%.3fms", float64(m.Duration.Microseconds())/1000),
		}).Debug("sandbox request")
	})
}
