package pario

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rshape/pario/chanx"
	"github.com/rshape/pario/metrics"
	"github.com/rshape/pario/scope"
)

// activeReadaheadPumps counts currently-running pump goroutines across
// every readaheadStage in the process. Exercised by
// TestTeardownCompletenessReadahead to verify spec.md §8's teardown
// completeness invariant.
var activeReadaheadPumps atomic.Int64

// readaheadStage is a single-producer prefetch stage (component G): one
// background goroutine pulls from upstream into a bounded FIFO so the
// caller's next Next call often finds an item already waiting, instead
// of paying upstream's latency synchronously. Order is preserved
// trivially, since there is exactly one producer and one FIFO.
type readaheadStage[T any] struct {
	id       uuid.UUID
	upstream Stage[T]
	out      *chanx.Closable[readaheadItem[T]]
	cfg      config

	ctx    context.Context
	cancel context.CancelFunc

	launcher launcher

	closeOnce sync.Once
	joined    chan struct{}

	eof   bool
	fault *Fault

	ingress hook
	egress  hook
	seq     uint64
}

type readaheadItem[T any] struct {
	val T
	err error
	seq uint64
}

// Readahead wraps upstream in a prefetch buffer of capacity k. k == 0
// is valid: the stage still decouples producer from consumer by one
// item, via the rendezvous of an unbuffered channel, rather than
// providing no decoupling at all. opts accepts the same profiling and
// event options as ParallelMap/ParallelFilter (WithProfileIngress,
// WithProfileEgress, WithOnStageEvent). WithThreads/WithMaxInFlight have
// no effect here (readahead has exactly one producer), but a zero value
// for either is still rejected with ErrMisconfigured.
func Readahead[T any](ctx context.Context, upstream Stage[T], k int, opts ...Option) (Stage[T], error) {
	if k < 0 {
		panic("pario: Readahead requires k >= 0")
	}
	return newReadaheadStage[T](ctx, upstream, k, newErrgroupLauncher(ctx), opts...)
}

// ReadaheadScoped is Readahead's structured-concurrency counterpart: the
// prefetch goroutine runs as a task of sp. See ParallelMapScoped for the
// borrowing and draining contract this implies.
func ReadaheadScoped[T any](sp scope.Spawner, upstream Stage[T], k int, opts ...Option) (Stage[T], error) {
	if k < 0 {
		panic("pario: ReadaheadScoped requires k >= 0")
	}
	return newReadaheadStage[T](context.Background(), upstream, k, &scopeLauncher{sp: sp}, opts...)
}

func newReadaheadStage[T any](ctx context.Context, upstream Stage[T], k int, l launcher, opts ...Option) (*readaheadStage[T], error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &readaheadStage[T]{
		id:       newStageID(),
		upstream: upstream,
		out:      chanx.NewClosable[readaheadItem[T]](k),
		cfg:      cfg,
		ctx:      rctx,
		cancel:   cancel,
		launcher: l,
		joined:   make(chan struct{}),
	}
	r.ingress = newHook(cfg.profileIngress, cfg.metrics, "pario_ingress")
	r.egress = newHook(cfg.profileEgress, cfg.metrics, "pario_egress")
	l.spawn(r.pump)
	return r, nil
}

// pump is the single producer: pull from upstream and forward each
// result until upstream is exhausted, then close out. ingress times the
// pull itself — the point an item enters this stage's prefetch buffer;
// the final pull that ends the stream is not recorded.
func (r *readaheadStage[T]) pump() {
	activeReadaheadPumps.Add(1)
	defer activeReadaheadPumps.Add(-1)
	defer close(r.joined)
	defer r.out.Close()
	for {
		stop := r.ingress.start()
		val, err := r.pull()
		seq := r.seq
		r.seq++
		if err == nil {
			stop()
			emitStageEvent(&r.cfg, r.id, StageIngress, seq, nil)
		}
		if r.out.SendContext(r.ctx, readaheadItem[T]{val: val, err: err, seq: seq}) != nil {
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *readaheadStage[T]) pull() (val T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newFault(rec)
		}
	}()
	return r.upstream.Next(r.ctx)
}

// Next blocks until the next prefetched item is available. egress times
// the span from this call's entry to the moment an item is actually
// handed back to the caller out of the prefetch buffer.
func (r *readaheadStage[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if r.eof {
		return zero, io.EOF
	}
	stopEgress := r.egress.start()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case item, ok := <-r.out.Chan():
		if !ok {
			r.eof = true
			return zero, io.EOF
		}
		if item.err != nil {
			r.eof = true
			r.shutdown()
			if item.err == io.EOF {
				emitStageEvent(&r.cfg, r.id, StageEOF, item.seq, nil)
				return zero, io.EOF
			}
			f := asFault(item.err)
			emitStageEvent(&r.cfg, r.id, StageFaulted, item.seq, f)
			panic(f)
		}
		stopEgress()
		emitStageEvent(&r.cfg, r.id, StageEgress, item.seq, nil)
		return item.val, nil
	}
}

func (r *readaheadStage[T]) Close() error {
	r.shutdown()
	return nil
}

// Profile implements Profiler, mirroring parallelStage.Profile. A
// readahead stage has no user function of its own to time, so it only
// ever reports ingress/egress, never a userfn entry.
func (r *readaheadStage[T]) Profile() map[string]metrics.HistSnapshot {
	bp, ok := r.cfg.metrics.(*metrics.BasicProvider)
	if !ok || bp == nil {
		return nil
	}
	out := make(map[string]metrics.HistSnapshot)
	if r.cfg.profileIngress {
		out["ingress"] = bp.HistogramSnapshot("pario_ingress")
	}
	if r.cfg.profileEgress {
		out["egress"] = bp.HistogramSnapshot("pario_egress")
	}
	return out
}

// shutdown cancels the pump, drains its output FIFO synchronously in
// the calling goroutine (mirroring parallelStage.shutdown in
// driver.go), and only returns once pump has fully joined — no drain
// goroutine is left running unsupervised.
func (r *readaheadStage[T]) shutdown() {
	r.closeOnce.Do(func() {
		r.cancel()

	drain:
		for {
			select {
			case _, ok := <-r.out.Chan():
				if !ok {
					break drain
				}
			case <-r.joined:
				for {
					select {
					case _, ok := <-r.out.Chan():
						if !ok {
							break drain
						}
					default:
						break drain
					}
				}
			}
		}
		<-r.joined
		r.launcher.join()
	})
}
