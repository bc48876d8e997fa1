package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func failing(calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return "", errBoom
	}
}

func succeeding(calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return "ok", nil
	}
}

func tripped(t *testing.T, clock *fakeClock) *Breaker {
	t.Helper()
	b := New("test", Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}, WithClock(clock.Now))
	calls := 0
	for i := 0; i < 3; i++ {
		_, err := Execute(context.Background(), b, failing(&calls))
		require.ErrorIs(t, err, errBoom)
	}
	require.Equal(t, StateOpen, b.State())
	return b
}

func TestBreaker_InitialState(t *testing.T) {
	b := New("test", DatabaseConfig())

	assert.Equal(t, StateClosed, b.State())
	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 100.0, stats.UptimePercentage)
	assert.Zero(t, stats.TotalRequests)
}

func TestBreaker_OpensAfterThresholdAndFailsFast(t *testing.T) {
	clock := newFakeClock()
	b := New("flight", Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}, WithClock(clock.Now))

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), b, failing(&calls))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateClosed, b.State())
	}

	_, err := Execute(context.Background(), b, failing(&calls))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, calls)

	_, err = Execute(context.Background(), b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "flight")
	assert.Equal(t, 3, calls, "wrapped operation must not run while open")
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	calls := 0
	_, _ = Execute(context.Background(), b, failing(&calls))
	_, _ = Execute(context.Background(), b, failing(&calls))
	_, err := Execute(context.Background(), b, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, 0, b.Stats().FailureCount)

	_, _ = Execute(context.Background(), b, failing(&calls))
	_, _ = Execute(context.Background(), b, failing(&calls))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StaysOpenUntilRecoveryElapsed(t *testing.T) {
	clock := newFakeClock()
	b := tripped(t, clock)

	clock.Advance(30 * time.Second)
	calls := 0
	_, err := Execute(context.Background(), b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen, "recovery must strictly elapse")
	assert.Zero(t, calls)
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := tripped(t, clock)
	clock.Advance(31 * time.Second)

	calls := 0
	v, err := Execute(context.Background(), b, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := tripped(t, clock)
	clock.Advance(31 * time.Second)

	calls := 0
	_, err := Execute(context.Background(), b, failing(&calls))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateOpen, b.State())

	_, err = Execute(context.Background(), b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestBreaker_SingleTrialWhileHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := tripped(t, clock)
	clock.Advance(31 * time.Second)

	started := make(chan struct{})
	unblock := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), b, func(context.Context) (string, error) {
			close(started)
			<-unblock
			return "ok", nil
		})
		trialDone <- err
	}()

	<-started
	assert.Equal(t, StateHalfOpen, b.State())

	calls := 0
	_, err := Execute(context.Background(), b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen, "second caller must fail fast during the trial")
	assert.Zero(t, calls)

	close(unblock)
	require.NoError(t, <-trialDone)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_LateResultCannotCloseDuringTrial(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second}, WithClock(clock.Now))

	slowStarted := make(chan struct{})
	slowUnblock := make(chan struct{})
	slowDone := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), b, func(context.Context) (string, error) {
			close(slowStarted)
			<-slowUnblock
			return "ok", nil
		})
		slowDone <- err
	}()
	<-slowStarted

	calls := 0
	_, err := Execute(context.Background(), b, failing(&calls))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)
	trialStarted := make(chan struct{})
	trialUnblock := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), b, func(context.Context) (string, error) {
			close(trialStarted)
			<-trialUnblock
			return "", errBoom
		})
		trialDone <- err
	}()
	<-trialStarted
	require.Equal(t, StateHalfOpen, b.State())

	close(slowUnblock)
	require.NoError(t, <-slowDone)
	assert.Equal(t, StateHalfOpen, b.State())

	calls = 0
	_, err = Execute(context.Background(), b, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	close(trialUnblock)
	require.ErrorIs(t, <-trialDone, errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_LateFailureWhileOpenKeepsRecoveryWindow(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second}, WithClock(clock.Now))

	started := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), b, func(context.Context) (string, error) {
			close(started)
			<-unblock
			return "", errBoom
		})
		done <- err
	}()
	<-started

	calls := 0
	_, err := Execute(context.Background(), b, failing(&calls))
	require.ErrorIs(t, err, errBoom)

	clock.Advance(20 * time.Second)
	close(unblock)
	require.ErrorIs(t, <-done, errBoom)

	clock.Advance(11 * time.Second)
	_, err = Execute(context.Background(), b, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_UnexpectedErrorsDoNotCount(t *testing.T) {
	errValidation := errors.New("validation")
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		WithFailureClassifier(func(err error) bool { return !errors.Is(err, errValidation) }),
	)

	_, err := Execute(context.Background(), b, func(context.Context) (int, error) {
		return 0, errValidation
	})
	assert.ErrorIs(t, err, errValidation)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestBreaker_CallerCancellationIsNotCounted(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())

	err = b.Do(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State(), "timeouts count as failures")
}

func TestBreaker_ConcurrentFailuresAreNotUndercounted(t *testing.T) {
	b := New("test", Config{FailureThreshold: 50, RecoveryTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 49; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Do(context.Background(), func(context.Context) error { return errBoom })
		}()
	}
	wg.Wait()

	assert.Equal(t, 49, b.Stats().FailureCount)
	assert.Equal(t, StateClosed, b.State())
	_ = b.Do(context.Background(), func(context.Context) error { return errBoom })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ExecuteAsyncSharesStateMachine(t *testing.T) {
	clock := newFakeClock()
	b := New("test", Config{FailureThreshold: 2, RecoveryTimeout: time.Second}, WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		res := <-ExecuteAsync(context.Background(), b, func(context.Context) (int, error) {
			return 0, errBoom
		})
		assert.ErrorIs(t, res.Err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	res := <-ExecuteAsync(context.Background(), b, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, res.Err, ErrCircuitOpen)

	clock.Advance(2 * time.Second)
	res = <-ExecuteAsync(context.Background(), b, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	assert.Panics(t, func() {
		_ = b.Do(context.Background(), func(context.Context) error {
			panic("bad")
		})
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StatsAreIdempotent(t *testing.T) {
	b := New("test", HTTPConfig())
	calls := 0
	_, _ = Execute(context.Background(), b, succeeding(&calls))
	_, _ = Execute(context.Background(), b, failing(&calls))

	first := b.Stats()
	second := b.Stats()
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), first.TotalRequests)
	assert.Equal(t, uint64(1), first.SuccessCount)
	assert.Equal(t, 1, first.FailureCount)
	assert.Equal(t, 50.0, first.UptimePercentage)
}

func TestBreaker_RejectedCallsCountTowardTotal(t *testing.T) {
	clock := newFakeClock()
	b := tripped(t, clock)

	calls := 0
	_, _ = Execute(context.Background(), b, succeeding(&calls))
	stats := b.Stats()
	assert.Equal(t, uint64(4), stats.TotalRequests)
	assert.Equal(t, uint64(0), stats.SuccessCount)
	assert.Equal(t, 0.0, stats.UptimePercentage)
}

func TestBreaker_StateChangeListener(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var seen []string
	b := New("db", Config{FailureThreshold: 1, RecoveryTimeout: time.Second},
		WithClock(clock.Now),
		WithStateChangeListener(func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+from.String()+"->"+to.String())
		}),
	)

	_ = b.Do(context.Background(), func(context.Context) error { return errBoom })
	clock.Advance(2 * time.Second)
	_ = b.Do(context.Background(), func(context.Context) error { return nil })

	assert.Equal(t, []string{
		"db:closed->open",
		"db:open->half_open",
		"db:half_open->closed",
	}, seen)
}

func TestAggregate(t *testing.T) {
	agg := Aggregate(
		Stats{State: "closed", FailureCount: 1, SuccessCount: 3, TotalRequests: 4},
		Stats{State: "open", FailureCount: 3, SuccessCount: 1, TotalRequests: 4},
	)
	assert.Equal(t, "open", agg.State)
	assert.Equal(t, 3, agg.FailureCount)
	assert.Equal(t, uint64(4), agg.SuccessCount)
	assert.Equal(t, uint64(8), agg.TotalRequests)
	assert.Equal(t, 50.0, agg.UptimePercentage)

	assert.Equal(t, 100.0, Aggregate().UptimePercentage)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(New("passenger", HTTPConfig()))
	r.Register(New("flight", HTTPConfig()))

	assert.Equal(t, []string{"flight", "passenger"}, r.Names())
	_, ok := r.Get("flight")
	assert.True(t, ok)
	assert.Len(t, r.Stats(), 2)
}
