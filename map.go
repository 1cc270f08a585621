package pario

import (
	"context"

	"github.com/rshape/pario/scope"
)

// ParallelMap layers an order-preserving parallel map over upstream:
// fn runs concurrently across cfg.threads workers, but values emerge
// from the returned Stage in exactly the order upstream produced them.
//
// fn's error return is treated like a panic: it becomes a *Fault,
// surfaced by panicking out of the Next call where the cursor reaches
// that item, after every earlier, already-ready item has been returned.
func ParallelMap[A, B any](ctx context.Context, upstream Stage[A], fn func(ctx context.Context, val A) (B, error), opts ...Option) (Stage[B], error) {
	transform := func(ctx context.Context, val A) (B, bool, error) {
		out, err := fn(ctx, val)
		return out, false, err
	}
	l := newErrgroupLauncher(ctx)
	return newParallelStage[A, B](ctx, upstream, transform, l, opts...)
}

// ParallelMapScoped is ParallelMap's structured-concurrency counterpart:
// workers run as tasks of sp rather than free goroutines, so fn may
// safely capture references from sp's enclosing scope.Run (e.g. borrow
// a loop variable or stack-local buffer), and any panic inside fn is
// subject to sp's own panic policy as well as becoming this stage's
// Fault.
//
// The returned stage must be fully drained (Next called through io.EOF,
// or Close called) before the enclosing scope.Run returns, since its
// workers are tasks of that scope.
func ParallelMapScoped[A, B any](sp scope.Spawner, upstream Stage[A], fn func(ctx context.Context, val A) (B, error), opts ...Option) (Stage[B], error) {
	transform := func(ctx context.Context, val A) (B, bool, error) {
		out, err := fn(ctx, val)
		return out, false, err
	}
	l := &scopeLauncher{sp: sp}
	return newParallelStage[A, B](context.Background(), upstream, transform, l, opts...)
}
