package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] could serve a
// call, whether because it errored or because its breaker rejected the call.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the breaker tuning applied to every member of a
// [FallbackGroup]. Each member still gets its own independent breaker.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// member is one backend in the group together with its breaker.
type member[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable backends: the
// primary first, then fallbacks in registration order. Calls walk the list
// until a member succeeds, skipping members whose breaker is open.
//
// The group must be fully assembled before first use; AddFallback is not safe
// to call concurrently with Execute.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup builds a group with primary as its sole member. Register
// alternates with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend to the end of the try order.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, backend T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{
		name:    name,
		backend: backend,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first registered backend.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.members[0].backend
}

// Execute runs fn against members in order until one succeeds. When every
// member fails the last error is wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against members in order until one succeeds and
// returns that member's result. It is a free function rather than a method
// because methods cannot introduce the result type parameter.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.members {
		m := &fg.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "provider", m.name)
		} else {
			slog.Warn("backend failed, trying next",
				"provider", m.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
