package pario

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rshape/pario/scope"
)

// launcher abstracts how a stage's worker goroutines are started and
// joined, so the driver (driver.go) is identical whether a stage uses
// the default launcher or a *_scoped variant.
type launcher interface {
	// spawn starts fn as a new goroutine/task. fn must return once it
	// observes its input closed or the stage's context cancelled.
	spawn(fn func())

	// join blocks until every spawned fn has returned. For the scoped
	// launcher this is a no-op: join is the caller's scope.Run itself.
	join()
}

// errgroupLauncher is the default (non-scoped) launcher: plain
// goroutines joined via an errgroup.Group, since no stack-borrowing is
// required when the stage owns its items by value. Grounded on
// golang.org/x/sync/errgroup usage in teacher's compare_bench_test.go
// and mindfulqumachine-go-streams' execution.go/fusion.go.
type errgroupLauncher struct {
	g *errgroup.Group
}

func newErrgroupLauncher(ctx context.Context) *errgroupLauncher {
	g, _ := errgroup.WithContext(ctx)
	return &errgroupLauncher{g: g}
}

func (l *errgroupLauncher) spawn(fn func()) {
	l.g.Go(func() error {
		fn()
		return nil
	})
}

func (l *errgroupLauncher) join() {
	_ = l.g.Wait()
}

// scopeLauncher spawns workers as tasks of a caller-supplied
// scope.Spawner (component B). join is a no-op: the enclosing
// scope.Run call performs the join when it returns, which is why
// *_scoped stages must be constructed and fully drained within one
// scope.Run.
type scopeLauncher struct {
	sp scope.Spawner
}

func (l *scopeLauncher) spawn(fn func()) {
	l.sp.Go("pario-worker", func(ctx context.Context) error {
		fn()
		return nil
	})
}

func (l *scopeLauncher) join() {}
