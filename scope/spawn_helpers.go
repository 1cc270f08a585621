package scope

import (
	"context"
	"time"
)

// SpawnTimeout spawns a task with a per-task deadline. fn receives a context
// derived from the task's context with the given timeout applied; exceeding
// it surfaces [context.DeadlineExceeded] as the task's error.
func SpawnTimeout(sp Spawner, name string, d time.Duration, fn func(ctx context.Context, sub Spawner) error) {
	sp.Spawn(name, func(ctx context.Context, sub Spawner) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx, sub)
	})
}

// SpawnScope spawns a sub-scope as a single task. fn runs within a fresh
// [Scope] created from the task's context, configured by opts, allowing a
// subtree of tasks to use an error policy independent of its parent.
//
// The sub-scope's aggregated error (if any) becomes the spawned task's
// error, wrapped in the usual [*TaskError] attribution.
func SpawnScope(sp Spawner, name string, fn func(sub Spawner), opts ...Option) {
	sp.Spawn(name, func(ctx context.Context, _ Spawner) error {
		return Run(ctx, fn, opts...)
	})
}

// SpawnRetry spawns a task that retries fn up to n additional times (n+1
// attempts total) with a fixed backoff between attempts, stopping early on
// success. The task's error is the last attempt's error, or the context
// error if cancelled while waiting out the backoff.
//
// Panics if n < 0 or backoff <= 0.
func SpawnRetry(sp Spawner, name string, n int, backoff time.Duration, fn func(ctx context.Context, sub Spawner) error) {
	if n < 0 {
		panic("scope: SpawnRetry requires n >= 0")
	}
	if backoff <= 0 {
		panic("scope: SpawnRetry requires backoff > 0")
	}

	sp.Spawn(name, func(ctx context.Context, sub Spawner) error {
		var lastErr error
		for attempt := 0; attempt <= n; attempt++ {
			lastErr = fn(ctx, sub)
			if lastErr == nil {
				return nil
			}
			if attempt == n {
				break
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return lastErr
	})
}
