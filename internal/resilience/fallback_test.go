package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(maxFailures int, resetTimeout time.Duration) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: resetTimeout,
		},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrefersPrimary(t *testing.T) {
	fg := newStringGroup(3, 0)

	var served string
	if err := fg.Execute(func(v string) error {
		served = v
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "primary" {
		t.Fatalf("served by %q, want primary", served)
	}
	if got := fg.Primary(); got != "primary" {
		t.Fatalf("Primary() = %q", got)
	}
}

func TestFallbackGroup_FailsOverWhenPrimaryErrors(t *testing.T) {
	fg := newStringGroup(3, 0)

	var served string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errTest
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "secondary" {
		t.Fatalf("served by %q, want secondary", served)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	fg := newStringGroup(3, 0)

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsMember(t *testing.T) {
	fg := newStringGroup(2, time.Hour)

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var calls []string
	if err := fg.Execute(func(v string) error {
		calls = append(calls, v)
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Fatalf("calls = %v, want only secondary while primary is tripped", calls)
	}
}

func TestExecuteWithResult_ReturnsFirstHealthyResult(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v * 2, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 40 {
		t.Fatalf("result = %d, want 40", got)
	}
}

func TestExecuteWithResult_AllFailed(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})

	_, err := ExecuteWithResult(fg, func(int) (int, error) {
		return 0, errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
