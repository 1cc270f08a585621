package pario

import (
	"context"

	"github.com/rshape/pario/scope"
)

// ParallelFilter layers an order-preserving parallel filter over
// upstream: pred runs concurrently across cfg.threads workers, but
// surviving values emerge from the returned Stage in exactly the order
// upstream produced them, with rejected items simply absent.
func ParallelFilter[T any](ctx context.Context, upstream Stage[T], pred func(ctx context.Context, val T) bool, opts ...Option) (Stage[T], error) {
	transform := func(ctx context.Context, val T) (T, bool, error) {
		keep := pred(ctx, val)
		return val, !keep, nil
	}
	l := newErrgroupLauncher(ctx)
	return newParallelStage[T, T](ctx, upstream, transform, l, opts...)
}

// ParallelFilterScoped is ParallelFilter's structured-concurrency
// counterpart; see ParallelMapScoped for the borrowing and draining
// contract this implies.
func ParallelFilterScoped[T any](sp scope.Spawner, upstream Stage[T], pred func(ctx context.Context, val T) bool, opts ...Option) (Stage[T], error) {
	transform := func(ctx context.Context, val T) (T, bool, error) {
		keep := pred(ctx, val)
		return val, !keep, nil
	}
	l := &scopeLauncher{sp: sp}
	return newParallelStage[T, T](context.Background(), upstream, transform, l, opts...)
}
