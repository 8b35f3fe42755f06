// SPDX-License-Identifier: Apache-2.0
package resilience

import "context"

// FirstOf tries each attempt in order and returns the first success. When
// every attempt fails the last error is returned. Used for caller-side
// degradation chains, e.g. trying a large model class and falling back to a
// small one when no handler is registered.
func FirstOf[T any](ctx context.Context, attempts ...func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for _, attempt := range attempts {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		value, err := attempt(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// Static returns an attempt that always succeeds with a fixed value,
// typically the terminal link of a FirstOf chain.
func Static[T any](value T) func(ctx context.Context) (T, error) {
	return func(context.Context) (T, error) {
		return value, nil
	}
}
