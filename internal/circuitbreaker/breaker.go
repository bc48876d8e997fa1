// Package circuitbreaker guards calls to a downstream dependency with a
// consecutive-failure circuit breaker.
//
// A Breaker is constructed once per dependency at startup and shared by
// every caller of that dependency. Calls go through Execute (blocking) or
// ExecuteAsync (channel based); both run the same state machine.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without invoking the operation while the breaker is open
// or while a half-open trial is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// errOperationPanicked is recorded as a failure when the wrapped operation panics.
var errOperationPanicked = errors.New("operation panicked")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the thresholds of one breaker.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"required,min=1"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" validate:"required"`
}

// DatabaseConfig is the profile for the persistence dependency.
func DatabaseConfig() Config {
	return Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}
}

// HTTPConfig is the profile for outbound calls to peer services.
func HTTPConfig() Config {
	return Config{FailureThreshold: 3, RecoveryTimeout: 45 * time.Second}
}

// StateChangeFunc is notified after every transition, outside the breaker lock.
type StateChangeFunc func(name string, from, to State)

type Option func(*Breaker)

// WithFailureClassifier sets which errors count toward the threshold.
// Errors rejected by the classifier are returned to the caller untouched.
func WithFailureClassifier(isFailure func(error) bool) Option {
	return func(b *Breaker) {
		if isFailure != nil {
			b.isFailure = isFailure
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithStateChangeListener(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.listeners = append(b.listeners, fn)
		}
	}
}

// DefaultFailureClassifier counts every error except caller cancellation.
func DefaultFailureClassifier(err error) bool {
	return !errors.Is(err, context.Canceled)
}

type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration
	isFailure func(error) bool
	now       func() time.Time
	logger    *zap.Logger
	listeners []StateChangeFunc

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	trialInFlight       bool
	successCount        uint64
	totalRequests       uint64
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		isFailure: DefaultFailureClassifier,
		now:       time.Now,
		logger:    zap.NewNop(),
		state:     StateClosed,
	}
	if b.threshold < 1 {
		b.threshold = 1
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type transition struct {
	from, to State
}

// acquire admits or rejects a call. trial is true when the caller holds the
// single half-open slot and must hand it back through release.
func (b *Breaker) acquire() (trial bool, err error) {
	var changes []transition

	b.mu.Lock()
	b.totalRequests++
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) <= b.recovery {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		changes = append(changes, b.setStateLocked(StateHalfOpen))
		b.trialInFlight = true
		trial = true
	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.trialInFlight = true
		trial = true
	}
	b.mu.Unlock()

	b.notify(changes)
	return trial, nil
}

func (b *Breaker) release(trial bool, err error) {
	var changes []transition

	b.mu.Lock()
	if trial {
		b.trialInFlight = false
	}
	// A call admitted while closed that finishes after the breaker opened is
	// counted but cannot move the state; only the trial decides half-open.
	stale := !trial && b.state != StateClosed
	switch {
	case err == nil:
		b.successCount++
		if stale {
			break
		}
		b.consecutiveFailures = 0
		if b.state == StateHalfOpen {
			changes = append(changes, b.setStateLocked(StateClosed))
		}
	case stale:
	case b.isFailure(err):
		b.consecutiveFailures++
		b.lastFailure = b.now()
		if b.consecutiveFailures >= b.threshold && b.state != StateOpen {
			changes = append(changes, b.setStateLocked(StateOpen))
		}
	}
	b.mu.Unlock()

	b.notify(changes)
}

func (b *Breaker) setStateLocked(to State) transition {
	t := transition{from: b.state, to: to}
	b.state = to
	return t
}

func (b *Breaker) notify(changes []transition) {
	for _, t := range changes {
		fields := []zap.Field{
			zap.String("breaker", b.name),
			zap.String("from", t.from.String()),
			zap.String("to", t.to.String()),
		}
		if t.to == StateOpen {
			b.logger.Error("circuit breaker opened, requests will fail fast", fields...)
		} else {
			b.logger.Warn("circuit breaker state changed", fields...)
		}
		for _, fn := range b.listeners {
			fn(b.name, t.from, t.to)
		}
	}
}

// Result carries the outcome of an asynchronous execution.
type Result[T any] struct {
	Value T
	Err   error
}

// Execute runs op through the breaker. When the breaker rejects the call the
// returned error wraps ErrCircuitOpen and op is never invoked; otherwise op's
// own value and error are returned unchanged.
func Execute[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (value T, err error) {
	trial, err := b.acquire()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", b.name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			b.release(trial, errOperationPanicked)
			panic(r)
		}
	}()

	value, err = op(ctx)
	b.release(trial, err)
	return value, err
}

// ExecuteAsync starts op through the breaker on its own goroutine. The
// channel receives exactly one Result and is then closed.
func ExecuteAsync[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		v, err := Execute(ctx, b, op)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

// Do is Execute for operations without a value.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

type Stats struct {
	State            string  `json:"state"`
	FailureCount     int     `json:"failure_count"`
	SuccessCount     uint64  `json:"success_count"`
	TotalRequests    uint64  `json:"total_requests"`
	UptimePercentage float64 `json:"uptime_percentage"`
}

// Stats returns a snapshot of the counters. It never changes breaker state.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:            b.state.String(),
		FailureCount:     b.consecutiveFailures,
		SuccessCount:     b.successCount,
		TotalRequests:    b.totalRequests,
		UptimePercentage: uptime(b.successCount, b.totalRequests),
	}
}

func uptime(success, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(success)/float64(total)*100*100) / 100
}
