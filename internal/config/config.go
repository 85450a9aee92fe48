package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// AuthConfig holds the authorization server settings.
type AuthConfig struct {
	ClientID string `toml:"client_id"`
	// ClientSecret is only ever read from QUOTEDECK_CLIENT_SECRET.
	ClientSecret              string   `toml:"-"`
	IssuerURL                 string   `toml:"issuer_url"`
	DeviceAuthorizationPath   string   `toml:"device_authorization_path"`
	TokenPath                 string   `toml:"token_path"`
	Scopes                    []string `toml:"scopes"`
	AuthenticateDeviceRequest bool     `toml:"authenticate_device_request"`
	MaxTransportFailures      int      `toml:"max_transport_failures"`
	TokenFile                 string   `toml:"token_file"`
}

// APIConfig holds the quotes API settings.
type APIConfig struct {
	BaseURL             string `toml:"base_url"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	CacheTTLSeconds     int    `toml:"cache_ttl_seconds"`
	RetryOnUnauthorized *bool  `toml:"retry_on_unauthorized"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `toml:"level"`
	File        string `toml:"file"`
	GraylogAddr string `toml:"graylog_addr"`
}

// Config holds all quotedeck configuration.
type Config struct {
	Auth AuthConfig `toml:"auth"`
	API  APIConfig  `toml:"api"`
	Log  LogConfig  `toml:"log"`
}

const (
	DefaultClientID                = "quotedeck-cli"
	defaultDeviceAuthorizationPath = "/oauth/device/code"
	defaultTokenPath               = "/oauth/token"
	defaultTimeout                 = 15 * time.Second
	defaultCacheTTL                = 30 * time.Second
)

// DefaultScopes are requested when the config does not list any.
var DefaultScopes = []string{"quotes:read", "quotes:write", "offline_access"}

// Default returns the configuration written by "quotedeck config init".
func Default() Config {
	retry := true
	return Config{
		Auth: AuthConfig{
			ClientID:                DefaultClientID,
			DeviceAuthorizationPath: defaultDeviceAuthorizationPath,
			TokenPath:               defaultTokenPath,
			Scopes:                  DefaultScopes,
		},
		API: APIConfig{
			TimeoutSeconds:      int(defaultTimeout / time.Second),
			CacheTTLSeconds:     int(defaultCacheTTL / time.Second),
			RetryOnUnauthorized: &retry,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ClientIDOrDefault returns ClientID if set, otherwise DefaultClientID.
func (a AuthConfig) ClientIDOrDefault() string {
	if a.ClientID != "" {
		return a.ClientID
	}
	return DefaultClientID
}

// ScopesOrDefault returns Scopes if set, otherwise DefaultScopes.
func (a AuthConfig) ScopesOrDefault() []string {
	if len(a.Scopes) > 0 {
		return a.Scopes
	}
	return DefaultScopes
}

// DeviceAuthorizationURL joins the issuer URL and the device authorization path.
// It returns "" when no issuer is configured.
func (a AuthConfig) DeviceAuthorizationURL() (string, error) {
	return joinIssuer(a.IssuerURL, a.DeviceAuthorizationPath, defaultDeviceAuthorizationPath)
}

// TokenURL joins the issuer URL and the token path.
func (a AuthConfig) TokenURL() (string, error) {
	return joinIssuer(a.IssuerURL, a.TokenPath, defaultTokenPath)
}

func joinIssuer(issuer, path, fallback string) (string, error) {
	if issuer == "" {
		return "", nil
	}
	if path == "" {
		path = fallback
	}
	// absolute paths in config win over the issuer
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	u, err := url.JoinPath(issuer, path)
	if err != nil {
		return "", fmt.Errorf("building URL from issuer %q: %w", issuer, err)
	}
	return u, nil
}

// Timeout returns the API request timeout.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds > 0 {
		return time.Duration(a.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// CacheTTL returns how long list results are cached. Zero disables caching.
func (a APIConfig) CacheTTL() time.Duration {
	switch {
	case a.CacheTTLSeconds < 0:
		return 0
	case a.CacheTTLSeconds == 0:
		return defaultCacheTTL
	}
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// RetryOnUnauthorizedOrDefault reports whether a rejected token is refreshed
// and the call retried once. Defaults to true.
func (a APIConfig) RetryOnUnauthorizedOrDefault() bool {
	if a.RetryOnUnauthorized == nil {
		return true
	}
	return *a.RetryOnUnauthorized
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - QUOTEDECK_CLIENT_ID     overrides auth.client_id
//   - QUOTEDECK_CLIENT_SECRET sets the client secret (never stored in the file)
//   - QUOTEDECK_AUTH_URL      overrides auth.issuer_url
//   - QUOTEDECK_TOKEN_FILE    overrides auth.token_file
//   - QUOTEDECK_API_URL       overrides api.base_url
//   - QUOTEDECK_LOG_LEVEL     overrides log.level
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// DefaultConfigPath returns the default path for the quotedeck config file.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "quotedeck", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTEDECK_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("QUOTEDECK_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("QUOTEDECK_AUTH_URL"); v != "" {
		cfg.Auth.IssuerURL = v
	}
	if v := os.Getenv("QUOTEDECK_TOKEN_FILE"); v != "" {
		cfg.Auth.TokenFile = v
	}
	if v := os.Getenv("QUOTEDECK_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("QUOTEDECK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
// The client secret is never written.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
