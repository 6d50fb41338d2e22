// Package resilience shields the agent loop and the ingestion pipeline from
// flaky model backends. A [CircuitBreaker] stops hammering a backend after
// repeated failures; a [FallbackGroup] tries alternate backends of the same
// provider kind when the preferred one is tripped or erroring. [LLMFallback]
// and [EmbeddingsFallback] package the group behind the provider interfaces so
// the rest of the application never sees the failover machinery.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is the sentinel returned by [CircuitBreaker.Execute] while
// the breaker is tripped and its cool-down has not yet run out.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's operating mode.
type State int

const (
	// StateClosed forwards every call. This is the initial state.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after too
	// many consecutive failures; left once ResetTimeout has elapsed.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successful probes close the breaker again; a single failed probe trips
	// it back open.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. The zero value gets usable
// defaults from [NewCircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output, typically the backend name.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker while
	// closed. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before a tripped breaker starts letting
	// probe calls through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax caps the number of probe calls while half-open. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker (closed, open, half-open) guarding
// a single backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time
	probes        int
	probeFailures int
}

// NewCircuitBreaker builds a breaker from cfg, filling in defaults for any
// zero-valued tuning field.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker rejects the call, and feeds fn's result
// back into the breaker's failure accounting. A rejected call returns
// [ErrCircuitOpen] without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(err, probing)
	return err
}

// admit decides whether a call may proceed, handling the open to half-open
// transition. The returned bool reports whether the call counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFailures = 0
		slog.Info("circuit breaker half-open, probing backend", "breaker", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			// Probe budget spent; wait for the in-flight probes to settle.
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of a permitted call.
func (cb *CircuitBreaker) settle(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if !probing {
			cb.failures = 0
			return
		}
		if cb.probes-cb.probeFailures >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFailures = 0
			slog.Info("circuit breaker closed, backend recovered", "breaker", cb.name)
		}
		return
	}

	cb.lastFailureAt = time.Now()
	if probing {
		// One failed probe is enough evidence the backend is still down.
		cb.probeFailures++
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened, probe failed", "breaker", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"breaker", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// State reports the breaker's current mode. A tripped breaker whose cool-down
// has elapsed reports [StateHalfOpen] even though the stored state still says
// open; the transition itself happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFailures = 0
	slog.Info("circuit breaker reset", "breaker", cb.name)
}
