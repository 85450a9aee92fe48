package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/tokenstore"
)

// State is a device flow polling state.
type State int

const (
	StateStarted State = iota
	StatePolling
	StateAuthorized
	StateExpired
	StateDenied
	StateCancelled
	// StateFailed is reached after too many consecutive network failures.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StatePolling:
		return "polling"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	case StateDenied:
		return "denied"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s >= StateAuthorized
}

// Outcome is the terminal result of a polling run.
type Outcome struct {
	State State
	// Token is set when State is StateAuthorized.
	Token tokenstore.TokenState
	// Failure is the server's answer for Expired and Denied outcomes caused by an OAuth error.
	Failure *Failure
	// Err is the underlying error for protocol, transport and local-deadline outcomes.
	Err error
}

// Message is a short, user-facing description of the outcome.
func (o Outcome) Message() string {
	switch o.State {
	case StateAuthorized:
		return "signed in"
	case StateExpired:
		return "the device code expired before it was approved; start the sign-in again"
	case StateDenied:
		switch {
		case o.Failure != nil && o.Failure.Code == CodeAccessDenied:
			return "access was denied; start the sign-in again to retry"
		case o.Failure != nil:
			return fmt.Sprintf("sign-in rejected by the server (%s); start the sign-in again to retry", o.Failure)
		case o.Err != nil:
			return fmt.Sprintf("sign-in failed: %v", o.Err)
		}
		return "sign-in failed"
	case StateCancelled:
		return "sign-in cancelled"
	case StateFailed:
		return fmt.Sprintf("could not reach the authorization server: %v", o.Err)
	}
	return o.State.String()
}

// PollingScheduler exchanges a device code for tokens on a timer until a
// terminal state is reached.
//
// Every exchange runs on its own goroutine; only its result crosses back into
// the scheduling loop, so no two exchanges for the session ever overlap.
type PollingScheduler struct {
	session   DeviceFlowSession
	exchanger Exchanger
	store     tokenstore.Store
	log       logrus.FieldLogger

	now                  func() time.Time
	wait                 WaitFunc
	maxTransportFailures int
	attemptTimeout       time.Duration
	onStateChange        func(State)

	mu       sync.Mutex
	state    State
	interval time.Duration
	attempts int
	outcome  Outcome
	started  bool
	cancel   context.CancelFunc

	finishOnce sync.Once
	done       chan struct{}
}

// NewPollingScheduler creates a scheduler in StateStarted for session.
func NewPollingScheduler(session DeviceFlowSession, exchanger Exchanger, store tokenstore.Store, opts ...Option) *PollingScheduler {
	o := buildOptions(opts)
	interval := session.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &PollingScheduler{
		session:              session,
		exchanger:            exchanger,
		store:                store,
		log:                  o.log.WithField("component", "device-poller"),
		now:                  o.now,
		wait:                 o.wait,
		maxTransportFailures: o.maxTransportFailures,
		attemptTimeout:       o.attemptTimeout,
		onStateChange:        o.onStateChange,
		state:                StateStarted,
		interval:             interval,
		done:                 make(chan struct{}),
	}
}

// Start moves the scheduler to StatePolling and begins polling in the background.
// Polling stops when ctx is done, when Cancel is called, or on a terminal answer.
func (p *PollingScheduler) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started || p.state.Terminal() {
		p.mu.Unlock()
		return errors.New("polling already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.started = true
	p.cancel = cancel
	p.state = StatePolling
	p.mu.Unlock()

	p.notify(StatePolling)
	go p.run(ctx)
	return nil
}

// Cancel stops polling and moves the scheduler to StateCancelled unless it has
// already finished. It is safe to call more than once and before Start.
func (p *PollingScheduler) Cancel() {
	p.finish(Outcome{State: StateCancelled, Err: context.Canceled})
}

// State returns the current state.
func (p *PollingScheduler) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interval returns the current wait between polls, including slow_down increases.
func (p *PollingScheduler) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Attempts returns how many exchanges have completed.
func (p *PollingScheduler) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Session returns the device flow session being polled.
func (p *PollingScheduler) Session() DeviceFlowSession {
	return p.session
}

// Done is closed once a terminal state is reached.
func (p *PollingScheduler) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the terminal result. It is the zero Outcome until Done is closed.
func (p *PollingScheduler) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Wait blocks until polling ends or ctx is done.
func (p *PollingScheduler) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (p *PollingScheduler) run(ctx context.Context) {
	transportFailures := 0
	for {
		if ctx.Err() != nil {
			p.finish(Outcome{State: StateCancelled, Err: ctx.Err()})
			return
		}
		if p.pastDeadline() {
			p.finish(Outcome{State: StateExpired, Err: errors.New("device code lifetime elapsed")})
			return
		}
		if err := p.wait(ctx, p.Interval()); err != nil || ctx.Err() != nil {
			p.finish(Outcome{State: StateCancelled, Err: context.Canceled})
			return
		}
		if p.pastDeadline() {
			p.finish(Outcome{State: StateExpired, Err: errors.New("device code lifetime elapsed")})
			return
		}

		result, err := p.exchange(ctx)
		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()
		if ctx.Err() != nil {
			p.finish(Outcome{State: StateCancelled, Err: ctx.Err()})
			return
		}

		if err != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				p.finish(Outcome{State: StateDenied, Err: err})
				return
			}
			transportFailures++
			p.log.WithError(err).WithField("failures", transportFailures).Warn("token poll failed, will retry")
			if transportFailures >= p.maxTransportFailures {
				p.finish(Outcome{State: StateFailed, Err: err})
				return
			}
			continue
		}
		transportFailures = 0

		if result.Success != nil {
			p.authorize(result.Success)
			return
		}

		f := result.Failure
		switch f.Code {
		case CodeAuthorizationPending:
			p.log.Debug("authorization pending")
		case CodeSlowDown:
			p.mu.Lock()
			p.interval += SlowDownStep
			next := p.interval
			p.mu.Unlock()
			p.log.WithField("interval", next.String()).Debug("server asked to slow down")
		case CodeExpiredToken:
			p.finish(Outcome{State: StateExpired, Failure: f})
			return
		default:
			p.finish(Outcome{State: StateDenied, Failure: f})
			return
		}
	}
}

func (p *PollingScheduler) exchange(ctx context.Context) (TokenResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	type answer struct {
		result TokenResult
		err    error
	}
	ch := make(chan answer, 1)
	go func() {
		r, err := p.exchanger.ExchangeDeviceCode(attemptCtx, p.session.DeviceCode)
		ch <- answer{r, err}
	}()

	select {
	case a := <-ch:
		return a.result, a.err
	case <-ctx.Done():
		return TokenResult{}, ctx.Err()
	}
}

// authorize persists the new tokens before reporting success. A failed write is
// logged; the token is still usable for this session and is flushed on exit.
func (p *PollingScheduler) authorize(s *Success) {
	select {
	case <-p.done:
		return
	default:
	}
	st := tokenstore.TokenState{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       p.now().Add(s.ExpiresIn),
	}
	if err := p.store.Save(st); err != nil {
		p.log.WithError(err).Warn("could not persist tokens")
	}
	p.finish(Outcome{State: StateAuthorized, Token: st})
}

func (p *PollingScheduler) pastDeadline() bool {
	deadline, ok := p.session.Deadline()
	return ok && !p.now().Before(deadline)
}

func (p *PollingScheduler) finish(out Outcome) {
	first := false
	p.finishOnce.Do(func() {
		first = true
		p.mu.Lock()
		p.state = out.State
		p.outcome = out
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	if !first {
		return
	}
	// Outside the Once: the observer may call back into the scheduler.
	p.log.WithField("state", out.State.String()).Info("device flow finished")
	p.notify(out.State)
	close(p.done)
}

func (p *PollingScheduler) notify(s State) {
	if p.onStateChange != nil {
		p.onStateChange(s)
	}
}
