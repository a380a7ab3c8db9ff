// Package resilience provides circuit breaker and failover primitives for
// the scoring upload path.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed, open, half-open) that stops a flapping scoring service from
// delaying every attempt. [FallbackGroup] composes multiple backends of the
// same type with per-entry circuit breakers so that a failing primary is
// automatically bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; a single failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is how many consecutive failures trip a closed breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before probing
	// again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls permitted while half-open and is also
	// the number of successful probes needed to close. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu          sync.Mutex
	state       State
	failStreak  int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewCircuitBreaker builds a closed [CircuitBreaker], substituting defaults
// for zero-value config fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 3
	}
	return cb
}

// Execute runs fn unless the breaker refuses the call, in which case it
// returns [ErrCircuitOpen] without invoking fn. fn's error is passed through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(err, probing)
	return err
}

// admit decides whether a call may proceed, performing the open to half-open
// transition when the reset timeout has elapsed. The returned bool tells the
// caller whether this call counts as a half-open probe.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle folds one call outcome into the breaker state.
func (cb *CircuitBreaker) settle(callErr error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case callErr == nil && probing:
		if cb.probes-cb.probeFails >= cb.halfOpenMax {
			cb.toClosed()
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}

	case callErr == nil:
		cb.failStreak = 0

	case probing:
		// One failed probe re-opens immediately.
		cb.lastFailure = time.Now()
		cb.probeFails++
		cb.state = StateOpen
		cb.failStreak = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)

	default:
		cb.lastFailure = time.Now()
		cb.failStreak++
		if cb.failStreak >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failStreak)
		}
	}
}

// toClosed resets to the closed state. Caller holds cb.mu.
func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failStreak = 0
	cb.probes = 0
	cb.probeFails = 0
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the stored transition happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing all failure accounting.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.toClosed()
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
