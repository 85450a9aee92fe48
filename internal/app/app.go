// Package app wires configuration, logging, token storage, the authentication
// core and the quotes client into one value shared by the CLI and the TUI.
package app

import (
	"io"
	"net/http"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/config"
	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/logging"
	"github.com/waabox/quotedeck/internal/quotes"
	"github.com/waabox/quotedeck/internal/tokenstore"
)

// App holds the long-lived components of one quotedeck process.
type App struct {
	Config config.Config
	Log    *logging.Logger
	Store  *tokenstore.FileStore
	Core   *auth.Core
	// Client is the plain API client; Quotes wraps it with refresh-and-retry when enabled.
	Client *quotes.Client
	Quotes domain.QuoteService
}

// Option customizes New.
type Option func(*settings)

type settings struct {
	logOutput   io.Writer
	authOptions []auth.Option
	baseRT      http.RoundTripper
}

// WithLogOutput sends console log lines to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.logOutput = w }
}

// WithAuthOptions passes extra options to the authentication core.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(s *settings) { s.authOptions = append(s.authOptions, opts...) }
}

// WithRoundTripper sets the transport under every HTTP client.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(s *settings) { s.baseRT = rt }
}

// New builds an App from cfg. Configuration problems are returned as
// *auth.ConfigurationError before any network call.
func New(cfg config.Config, opts ...Option) (*App, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	log, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		GraylogAddr: cfg.Log.GraylogAddr,
		Output:      s.logOutput,
	})
	if err != nil {
		return nil, &auth.ConfigurationError{Field: "log", Reason: err.Error()}
	}

	coreCfg, err := coreConfig(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}
	if cfg.API.BaseURL == "" {
		log.Close()
		return nil, &auth.ConfigurationError{Field: "api.base_url", Reason: "is not set (export QUOTEDECK_API_URL)"}
	}

	tokenFile := cfg.Auth.TokenFile
	if tokenFile == "" {
		tokenFile = tokenstore.DefaultPath()
	}
	store := tokenstore.NewFileStore(tokenFile, tokenstore.WithLogger(log))

	authOpts := []auth.Option{
		auth.WithLogger(log),
		auth.WithMaxTransportFailures(cfg.Auth.MaxTransportFailures),
		auth.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout(), Transport: s.baseRT}),
	}
	authOpts = append(authOpts, s.authOptions...)
	core, err := auth.NewCore(coreCfg, store, authOpts...)
	if err != nil {
		log.Close()
		return nil, err
	}

	transport := core.Transport()
	client := quotes.NewClient(cfg.API.BaseURL, transport,
		quotes.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout(), Transport: s.baseRT}),
		quotes.WithCacheTTL(cfg.API.CacheTTL()),
		quotes.WithLogger(log),
	)

	var svc domain.QuoteService = client
	if cfg.API.RetryOnUnauthorizedOrDefault() {
		svc = quotes.NewRefreshing(client, transport.ForceRefresh)
	}

	log.WithField("token_file", tokenFile).Debug("quotedeck initialised")
	return &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		Core:   core,
		Client: client,
		Quotes: svc,
	}, nil
}

func coreConfig(cfg config.Config) (auth.CoreConfig, error) {
	deviceURL, err := cfg.Auth.DeviceAuthorizationURL()
	if err != nil {
		return auth.CoreConfig{}, &auth.ConfigurationError{Field: "auth.issuer_url", Reason: err.Error()}
	}
	tokenURL, err := cfg.Auth.TokenURL()
	if err != nil {
		return auth.CoreConfig{}, &auth.ConfigurationError{Field: "auth.issuer_url", Reason: err.Error()}
	}
	if deviceURL == "" {
		return auth.CoreConfig{}, &auth.ConfigurationError{Field: "auth.issuer_url", Reason: "is not set (export QUOTEDECK_AUTH_URL)"}
	}
	return auth.CoreConfig{
		Credentials: auth.Credentials{
			ClientID:     cfg.Auth.ClientIDOrDefault(),
			ClientSecret: cfg.Auth.ClientSecret,
		},
		Endpoints: auth.Endpoints{
			DeviceAuthorizationURL: deviceURL,
			TokenURL:               tokenURL,
		},
		Scopes:                    cfg.Auth.ScopesOrDefault(),
		AuthenticateDeviceRequest: cfg.Auth.AuthenticateDeviceRequest,
	}, nil
}

// Close stops any running sign-in, writes the token state and flushes the logger.
func (a *App) Close() error {
	err := a.Core.Close()
	if cerr := a.Log.Close(); err == nil {
		err = cerr
	}
	return err
}
