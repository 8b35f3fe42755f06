// SPDX-License-Identifier: Apache-2.0
// Package resilience provides the timeout, retry, circuit breaker, and
// fallback wrappers the runtime puts around capability and backend calls.
package resilience

import (
	"context"
	"time"

	"github.com/daimon-agents/daimon/pkg/errors"
)

// WithTimeout executes fn with a timeout boundary. A zero duration runs fn
// directly. fn receives the bounded context and should honor it; the
// goroutine-and-select shape still frees the caller when fn does not.
// Returns errors.CodeTimeout if the deadline is exceeded.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d == 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case err := <-done:
		return err
	}
}

// Call executes fn with a timeout boundary, returning its value. The zero
// value of T accompanies a timeout error.
func Call[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d == 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case res := <-done:
		return res.value, res.err
	}
}
