package gateway

import (
	"context"
	"errors"
	"time"
)

// RetryObserver is told about every rate-limit wait.
type RetryObserver func(method string, wait time.Duration)

// withFloodWait runs fn until it returns something other than a
// RateLimitedError, sleeping exactly the requested time between attempts.
// There is no attempt cap; only ctx ends the loop early.
func withFloodWait(ctx context.Context, method string, observe RetryObserver, fn func(ctx context.Context) error) error {
	for {
		err := fn(ctx)
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return err
		}
		if observe != nil {
			observe(method, rl.RetryAfter)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.RetryAfter):
		}
	}
}
