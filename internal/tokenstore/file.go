package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFileName is the token file name inside the quotedeck config directory.
const DefaultFileName = "token.json"

// FileStore keeps the token state in memory and mirrors every mutation to a JSON file.
//
// Files are written with 0600 permissions inside a 0700 directory. Writes go to a
// temporary file in the same directory which is then renamed over the target, so a
// concurrent reader sees either the previous or the next record, never a partial one.
// Token values are never logged.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	state  TokenState
	loaded bool
	now    func() time.Time
	log    logrus.FieldLogger
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// Option configures a FileStore or MemoryStore.
type Option func(*options)

type options struct {
	now func() time.Time
	log logrus.FieldLogger
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used to report unreadable files and watcher events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	return o
}

// NewFileStore creates a store backed by path. The file is read lazily on first Load.
func NewFileStore(path string, opts ...Option) *FileStore {
	o := buildOptions(opts)
	return &FileStore{
		path: path,
		now:  o.now,
		log:  o.log.WithField("component", "tokenstore"),
	}
}

// DefaultPath returns ~/.config/quotedeck/token.json, falling back to the working directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "quotedeck", DefaultFileName)
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the current token state, reading the file the first time it is called.
func (s *FileStore) Load() TokenState {
	s.mu.RLock()
	if s.loaded {
		st := s.state
		s.mu.RUnlock()
		return visible(st, s.now())
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if !s.loaded {
		s.state = s.readLocked()
		s.loaded = true
	}
	st := s.state
	s.mu.Unlock()
	return visible(st, s.now())
}

// Reload discards the in-memory copy and re-reads the file.
func (s *FileStore) Reload() TokenState {
	s.mu.Lock()
	s.state = s.readLocked()
	s.loaded = true
	st := s.state
	s.mu.Unlock()
	return visible(st, s.now())
}

// Save replaces the stored record. The in-memory copy is updated even when the
// file write fails, so the token stays usable for the rest of the session.
func (s *FileStore) Save(state TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.loaded = true
	if err := s.writeLocked(state); err != nil {
		s.log.WithError(err).Warn("token state kept in memory but could not be written")
		return err
	}
	s.log.WithFields(logrus.Fields{
		"expiry":            state.Expiry.Format(time.RFC3339),
		"has_refresh_token": state.HasRefreshToken(),
	}).Debug("token state saved")
	return nil
}

// Clear removes the record from memory and disk.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = TokenState{}
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	s.log.Info("token state cleared")
	return nil
}

// Flush writes the in-memory record once more. It is meant to run at shutdown.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.state.Empty() {
		return nil
	}
	return s.writeLocked(s.state)
}

func (s *FileStore) readLocked() TokenState {
	// #nosec G304 -- path comes from configuration, not from remote input
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).Warn("token file unreadable, starting signed out")
		}
		return TokenState{}
	}
	var st TokenState
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.WithError(err).Warn("token file corrupt, starting signed out")
		return TokenState{}
	}
	return st
}

func (s *FileStore) writeLocked(state TokenState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("restricting token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// visible applies the load-time expiry rule: an expired access token is dropped
// but the refresh token survives so the caller can refresh instead of re-authenticating.
func visible(st TokenState, now time.Time) TokenState {
	if st.AccessToken != "" && !st.Valid(now) {
		return st.WithoutAccessToken()
	}
	return st
}
