package auth_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/waabox/quotedeck/internal/auth"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock advances only when the scheduler waits, so intervals can be
// asserted without sleeping.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type step struct {
	result auth.TokenResult
	err    error
}

func pending() step { return failure("authorization_pending", 400) }
func slowDown() step { return failure("slow_down", 400) }

func failure(code string, status int) step {
	return step{result: auth.TokenResult{Failure: &auth.Failure{
		Code:       auth.ParseErrorCode(code),
		RawCode:    code,
		StatusCode: status,
	}}}
}

func success(access, refresh string, expiresIn time.Duration) step {
	return step{result: auth.TokenResult{Success: &auth.Success{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	}}}
}

func networkDown() step {
	return step{err: &auth.TransportError{Op: "exchanging device code", Err: errors.New("connection refused")}}
}

// scriptedExchanger answers with its steps in order and repeats the last one.
type scriptedExchanger struct {
	mu          sync.Mutex
	device      []step
	refresh     []step
	deviceCalls int
	refreshArgs []string
	callTimes   []time.Time
	clock       *fakeClock
	inFlight    int
	maxInFlight int
	block       chan struct{}
}

func (s *scriptedExchanger) ExchangeDeviceCode(ctx context.Context, _ string) (auth.TokenResult, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	st := s.device[min(s.deviceCalls, len(s.device)-1)]
	s.deviceCalls++
	if s.clock != nil {
		s.callTimes = append(s.callTimes, s.clock.Now())
	}
	block := s.block
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return auth.TokenResult{}, &auth.TransportError{Op: "exchanging device code", Err: ctx.Err()}
		}
	}
	return st.result, st.err
}

func (s *scriptedExchanger) ExchangeRefreshToken(_ context.Context, rt string) (auth.TokenResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.refresh[min(len(s.refreshArgs), len(s.refresh)-1)]
	s.refreshArgs = append(s.refreshArgs, rt)
	return st.result, st.err
}

func (s *scriptedExchanger) DeviceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceCalls
}

func (s *scriptedExchanger) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshArgs)
}
