package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/logging"
)

const (
	// DefaultMaxTransportFailures bounds consecutive network failures while polling.
	DefaultMaxTransportFailures = 10
	// SlowDownStep is added to the polling interval on every slow_down answer.
	SlowDownStep = 5 * time.Second

	defaultHTTPTimeout    = 15 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Option configures the components of this package.
type Option func(*options)

type options struct {
	client               *http.Client
	log                  logrus.FieldLogger
	now                  func() time.Time
	wait                 WaitFunc
	maxTransportFailures int
	attemptTimeout       time.Duration
	onStateChange        func(State)
}

// WithHTTPClient sets the client used for authorization server calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWait overrides how the scheduler sleeps between polls.
func WithWait(w WaitFunc) Option {
	return func(o *options) {
		if w != nil {
			o.wait = w
		}
	}
}

// WithMaxTransportFailures sets how many consecutive network failures the
// scheduler tolerates before giving up. Values below 1 keep the default.
func WithMaxTransportFailures(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTransportFailures = n
		}
	}
}

// WithAttemptTimeout bounds a single token exchange while polling.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithStateObserver registers a callback invoked on every scheduler state change.
func WithStateObserver(fn func(State)) Option {
	return func(o *options) {
		o.onStateChange = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		client:               &http.Client{Timeout: defaultHTTPTimeout},
		log:                  logging.Discard(),
		now:                  time.Now,
		wait:                 sleep,
		maxTransportFailures: DefaultMaxTransportFailures,
		attemptTimeout:       defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
