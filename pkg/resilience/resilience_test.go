// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/errors"
)

func TestWithTimeoutCompletes(t *testing.T) {
	err := WithTimeout(context.Background(), 100*time.Millisecond, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected CodeTimeout, got %v", err)
	}
	if !errors.IsRecoverable(err) {
		t.Error("timeout errors should be recoverable")
	}
}

func TestWithTimeoutZeroRunsDirect(t *testing.T) {
	ran := false
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("zero duration should run fn directly, ran=%v err=%v", ran, err)
	}
}

func TestCallReturnsValue(t *testing.T) {
	got, err := Call(context.Background(), 100*time.Millisecond, func(ctx context.Context) (string, error) {
		return "value", nil
	})
	if err != nil || got != "value" {
		t.Fatalf("got (%q, %v), want (value, nil)", got, err)
	}
}

func TestCallTimeoutReturnsZero(t *testing.T) {
	got, err := Call(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 42, ctx.Err()
	})
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected CodeTimeout, got %v", err)
	}
	if got != 0 {
		t.Errorf("expected zero value on timeout, got %d", got)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond).WithMaxAttempts(5)
	err := cfg.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	attempts := 0
	fatal := errors.New(errors.CodeInvalidInput, "bad request", nil)
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := cfg.Do(context.Background(), func() error {
		attempts++
		return fatal
	})
	if attempts != 1 {
		t.Errorf("unrecoverable error should not retry, got %d attempts", attempts)
	}
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond).WithMaxAttempts(3)
	err := cfg.Do(context.Background(), func() error {
		attempts++
		return stderrors.New("always")
	})
	if err == nil {
		t.Fatal("expected final error")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultRetryConfig().WithInitialDelay(50 * time.Millisecond)
	err := cfg.Do(ctx, func() error {
		return stderrors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error after context cancel")
	}
}

func TestDoWithResult(t *testing.T) {
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	attempts := 0
	got, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, stderrors.New("transient")
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got (%d, %v), want (7, nil)", got, err)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	boom := stderrors.New("boom")

	for i := 0; i < 2; i++ {
		if err := cb.Call(context.Background(), func(ctx context.Context) error { return boom }); err != boom {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Call(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Fatalf("open circuit should reject with CodeUnavailable, got %v", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          5 * time.Millisecond,
	})
	_ = cb.Call(context.Background(), func(ctx context.Context) error { return stderrors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(10 * time.Millisecond)

	if err := cb.Call(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("half-open probe should run: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	cb.Open()
	if cb.State() != StateOpen {
		t.Fatal("expected open after Open()")
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatal("expected closed after Reset()")
	}
}

func TestFirstOfReturnsFirstSuccess(t *testing.T) {
	calls := []string{}
	got, err := FirstOf(context.Background(),
		func(ctx context.Context) (string, error) {
			calls = append(calls, "a")
			return "", stderrors.New("a failed")
		},
		func(ctx context.Context) (string, error) {
			calls = append(calls, "b")
			return "b-value", nil
		},
		func(ctx context.Context) (string, error) {
			calls = append(calls, "c")
			return "c-value", nil
		},
	)
	if err != nil || got != "b-value" {
		t.Fatalf("got (%q, %v), want (b-value, nil)", got, err)
	}
	if len(calls) != 2 {
		t.Errorf("third attempt should not run, calls=%v", calls)
	}
}

func TestFirstOfAllFail(t *testing.T) {
	last := stderrors.New("last")
	_, err := FirstOf(context.Background(),
		func(ctx context.Context) (int, error) { return 0, stderrors.New("first") },
		func(ctx context.Context) (int, error) { return 0, last },
	)
	if err != last {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestFirstOfStatic(t *testing.T) {
	got, err := FirstOf(context.Background(),
		func(ctx context.Context) (string, error) { return "", stderrors.New("nope") },
		Static("fallback"),
	)
	if err != nil || got != "fallback" {
		t.Fatalf("got (%q, %v), want (fallback, nil)", got, err)
	}
}
