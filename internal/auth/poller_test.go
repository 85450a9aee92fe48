package auth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/tokenstore"
)

func newSession(clock *fakeClock, interval, expiresIn time.Duration) auth.DeviceFlowSession {
	return auth.DeviceFlowSession{
		DeviceCode:      "dev-123",
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://auth.example.com/device",
		Interval:        interval,
		CreatedAt:       clock.Now(),
		ExpiresIn:       expiresIn,
	}
}

func runToEnd(t *testing.T, sched *auth.PollingScheduler) auth.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Start(context.Background()))
	out, err := sched.Wait(ctx)
	require.NoError(t, err, "scheduler did not finish")
	return out
}

func TestPollingScheduler_ScenarioA_PendingThenSuccess(t *testing.T) {
	clock := newFakeClock()
	store := tokenstore.NewMemoryStore(tokenstore.TokenState{}, tokenstore.WithClock(clock.Now))
	ex := &scriptedExchanger{
		clock:  clock,
		device: []step{pending(), pending(), pending(), success("at-1", "rt-1", 3600*time.Second)},
	}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 15*time.Minute), ex, store,
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateAuthorized, out.State)
	assert.Equal(t, auth.StateAuthorized, sched.State())
	assert.Equal(t, 4, ex.DeviceCalls())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.Waits())

	fourthPoll := t0.Add(20 * time.Second)
	saved := store.Raw()
	assert.Equal(t, "at-1", saved.AccessToken)
	assert.Equal(t, "rt-1", saved.RefreshToken)
	assert.True(t, saved.Expiry.Equal(fourthPoll.Add(3600*time.Second)), "expiry %s", saved.Expiry)
	assert.Equal(t, 1, store.Saves())
}

func TestPollingScheduler_ScenarioB_SlowDownThenExpired(t *testing.T) {
	clock := newFakeClock()
	store := tokenstore.NewMemoryStore(tokenstore.TokenState{})
	ex := &scriptedExchanger{device: []step{slowDown(), failure("expired_token", 400)}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, store,
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateExpired, out.State)
	require.NotNil(t, out.Failure)
	assert.Equal(t, auth.CodeExpiredToken, out.Failure.Code)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, clock.Waits())
	assert.Equal(t, 10*time.Second, sched.Interval())
	assert.True(t, store.Raw().Empty())
	assert.Equal(t, 0, store.Saves())
}

func TestPollingScheduler_PendingKeepsInterval(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{pending(), pending(), pending(), pending(), pending(), failure("access_denied", 400)}}
	sched := auth.NewPollingScheduler(newSession(clock, 7*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	runToEnd(t, sched)

	for _, w := range clock.Waits() {
		assert.Equal(t, 7*time.Second, w)
	}
	assert.Len(t, clock.Waits(), 6)
}

func TestPollingScheduler_SlowDownIsCumulativeAndSticky(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{slowDown(), slowDown(), pending(), pending(), success("a", "r", time.Hour)}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateAuthorized, out.State)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second, 15 * time.Second, 15 * time.Second,
	}, clock.Waits())
}

func TestPollingScheduler_DenialCodesAreTerminal(t *testing.T) {
	tests := []struct {
		name string
		code string
		want auth.ErrorCode
	}{
		{name: "access denied", code: "access_denied", want: auth.CodeAccessDenied},
		{name: "invalid grant", code: "invalid_grant", want: auth.CodeInvalidGrant},
		{name: "unknown code", code: "consent_withdrawn", want: auth.CodeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			store := tokenstore.NewMemoryStore(tokenstore.TokenState{})
			ex := &scriptedExchanger{device: []step{pending(), failure(tt.code, 400)}}
			sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, store,
				auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

			out := runToEnd(t, sched)

			assert.Equal(t, auth.StateDenied, out.State)
			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.want, out.Failure.Code)
			assert.Equal(t, tt.code, out.Failure.RawCode)
			assert.Equal(t, 2, ex.DeviceCalls())
			assert.NotEmpty(t, out.Message())
			assert.True(t, store.Raw().Empty())
		})
	}
}

func TestPollingScheduler_ProtocolErrorIsFatal(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{{err: &auth.ProtocolError{Op: "exchanging device code", StatusCode: 502}}}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateDenied, out.State)
	var pe *auth.ProtocolError
	require.True(t, errors.As(out.Err, &pe))
	assert.Equal(t, 502, pe.StatusCode)
	assert.Equal(t, 1, ex.DeviceCalls())
}

func TestPollingScheduler_TransportFailuresAreRetried(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{networkDown(), networkDown(), pending(), networkDown(), success("a", "r", time.Hour)}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait), auth.WithMaxTransportFailures(3))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateAuthorized, out.State)
	assert.Equal(t, 5, ex.DeviceCalls())
}

func TestPollingScheduler_TooManyTransportFailuresFail(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{networkDown()}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait), auth.WithMaxTransportFailures(3))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateFailed, out.State)
	var te *auth.TransportError
	assert.True(t, errors.As(out.Err, &te))
	assert.Equal(t, 3, ex.DeviceCalls())
}

func TestPollingScheduler_LocalDeadlineExpires(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{pending()}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 12*time.Second), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateExpired, out.State)
	assert.Nil(t, out.Failure)
	assert.Error(t, out.Err)
	assert.Equal(t, 2, ex.DeviceCalls(), "polls at 5s and 10s only")
}

func TestPollingScheduler_TokenSavedBeforeSuccessReported(t *testing.T) {
	clock := newFakeClock()
	store := tokenstore.NewMemoryStore(tokenstore.TokenState{})
	var savedWhenReported atomic.Bool
	ex := &scriptedExchanger{device: []step{success("a", "r", time.Hour)}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, store,
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait),
		auth.WithStateObserver(func(s auth.State) {
			if s == auth.StateAuthorized {
				savedWhenReported.Store(store.Raw().AccessToken == "a")
			}
		}))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateAuthorized, out.State)
	assert.True(t, savedWhenReported.Load())
}

func TestPollingScheduler_ObserverMayCancelOnTerminalState(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{success("a", "r", time.Hour)}}
	var sched *auth.PollingScheduler
	sched = auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait),
		auth.WithStateObserver(func(s auth.State) {
			if s.Terminal() {
				sched.Cancel()
			}
		}))

	out := runToEnd(t, sched)

	assert.Equal(t, auth.StateAuthorized, out.State, "a late Cancel does not change the outcome")
}

func TestPollingScheduler_CancelIsIdempotentAndStopsTicks(t *testing.T) {
	clock := newFakeClock()
	var waits atomic.Int32
	// the first wait returns at once, later waits block until cancelled
	wait := func(ctx context.Context, d time.Duration) error {
		if waits.Add(1) == 1 {
			return clock.Wait(ctx, d)
		}
		<-ctx.Done()
		return ctx.Err()
	}
	ex := &scriptedExchanger{device: []step{pending()}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(wait))
	require.NoError(t, sched.Start(context.Background()))
	require.Eventually(t, func() bool { return waits.Load() == 2 }, 5*time.Second, time.Millisecond)

	sched.Cancel()
	sched.Cancel()

	select {
	case <-sched.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, auth.StateCancelled, sched.State())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, ex.DeviceCalls())
	assert.Equal(t, int32(2), waits.Load())
}

func TestPollingScheduler_CancelAbortsInFlightExchange(t *testing.T) {
	clock := newFakeClock()
	store := tokenstore.NewMemoryStore(tokenstore.TokenState{})
	ex := &scriptedExchanger{device: []step{success("late", "r", time.Hour)}, block: make(chan struct{})}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, store,
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))
	require.NoError(t, sched.Start(context.Background()))
	require.Eventually(t, func() bool { return ex.DeviceCalls() == 1 }, 5*time.Second, time.Millisecond)

	sched.Cancel()
	<-sched.Done()
	close(ex.block)

	assert.Equal(t, auth.StateCancelled, sched.Outcome().State)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, store.Raw().Empty(), "a cancelled attempt must not store tokens")
}

func TestPollingScheduler_CancelBeforeStart(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{pending()}}
	sched := auth.NewPollingScheduler(newSession(clock, 5*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}))

	sched.Cancel()

	assert.Equal(t, auth.StateCancelled, sched.State())
	assert.Error(t, sched.Start(context.Background()))
	assert.Equal(t, 0, ex.DeviceCalls())
}

func TestPollingScheduler_NeverOverlapsExchanges(t *testing.T) {
	clock := newFakeClock()
	ex := &scriptedExchanger{device: []step{pending(), networkDown(), slowDown(), pending(), success("a", "r", time.Hour)}}
	sched := auth.NewPollingScheduler(newSession(clock, 2*time.Second, 0), ex, tokenstore.NewMemoryStore(tokenstore.TokenState{}),
		auth.WithClock(clock.Now), auth.WithWait(clock.Wait))

	runToEnd(t, sched)

	assert.Equal(t, 1, ex.maxInFlight)
}

func TestPollingScheduler_ClampsShortInterval(t *testing.T) {
	clock := newFakeClock()
	sched := auth.NewPollingScheduler(newSession(clock, time.Second, 0), &scriptedExchanger{device: []step{pending()}},
		tokenstore.NewMemoryStore(tokenstore.TokenState{}))
	assert.Equal(t, auth.MinPollInterval, sched.Interval())
	assert.Equal(t, auth.StateStarted, sched.State())
}
