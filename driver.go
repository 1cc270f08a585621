package pario

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rshape/pario/chanx"
	"github.com/rshape/pario/internal/reorder"
)

// activeWorkers counts currently-running worker goroutines across every
// parallelStage in the process. Exercised by
// TestTeardownCompletenessParallelStage to verify spec.md §8's teardown
// completeness invariant.
var activeWorkers atomic.Int64

// transformFunc is the unified shape behind both ParallelMap and
// ParallelFilter: it produces an output value and a dropped flag (always
// false for map) for one upstream item. A returned error is treated
// exactly like a recovered panic — wrapped into a *Fault — since this
// module's user functions are not expected to signal failure any other
// way (matching the Rust original's plain Fn(T) -> U / Fn(&T) -> bool
// signatures, with Go's idiomatic error return folded into the same
// fault path rather than added as a second failure channel).
type transformFunc[A, B any] func(ctx context.Context, val A) (out B, dropped bool, err error)

// inEnvelope is what the driver sends workers: the sequence number
// assigned during top-up, plus the upstream value.
type inEnvelope[A any] struct {
	seq uint64
	val A
}

// parallelStage is the shared driver behind ParallelMap and
// ParallelFilter (component F), generalizing teacher's
// ParallelMap/makeParallelNext dispatcher-plus-heap design to spec's
// two-phase top-up/deliver contract and a sequence-keyed reorder buffer
// (pario/internal/reorder) in place of teacher's indexedResultHeap.
type parallelStage[A, B any] struct {
	id        uuid.UUID
	upstream  Stage[A]
	transform transformFunc[A, B]
	cfg       config

	input  *chanx.Closable[inEnvelope[A]]
	output *chanx.Closable[reorder.Envelope[B]]
	buf    *reorder.Buffer[B]

	launcher launcher

	ctx    context.Context
	cancel context.CancelFunc

	nextSeq       uint64
	inFlight      int
	upstreamDone  bool
	upstreamFault error
	eof           bool
	fault         *Fault
	faultSurfaced bool
	shutdownOnce  sync.Once

	ingress hook
	egress  hook
	userFn  hook
}

// newParallelStage builds and eagerly starts a parallel stage: workers
// start immediately at construction (the Rust original's "started()"
// eager-start semantics), not lazily on the first Next call.
func newParallelStage[A, B any](
	ctx context.Context,
	upstream Stage[A],
	transform transformFunc[A, B],
	l launcher,
	opts ...Option,
) (*parallelStage[A, B], error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithCancel(ctx)
	d := &parallelStage[A, B]{
		id:        newStageID(),
		upstream:  upstream,
		transform: transform,
		cfg:       cfg,
		input:     chanx.NewClosable[inEnvelope[A]](cfg.maxInFlight),
		output:    chanx.NewClosable[reorder.Envelope[B]](cfg.maxInFlight),
		buf:       reorder.New[B](),
		launcher:  l,
		ctx:       dctx,
		cancel:    cancel,
	}
	d.ingress = newHook(cfg.profileIngress, cfg.metrics, "pario_ingress")
	d.egress = newHook(cfg.profileEgress, cfg.metrics, "pario_egress")
	d.userFn = newHook(cfg.profileUserFn, cfg.metrics, "pario_userfn")

	for i := 0; i < cfg.threads; i++ {
		d.launcher.spawn(d.runWorker)
	}
	return d, nil
}

// runWorker is the worker loop (component E): receive an envelope,
// apply the stage's transform with panic recovery, send the outcome
// bearing the same sequence number. Exits cleanly on input closure.
func (d *parallelStage[A, B]) runWorker() {
	activeWorkers.Add(1)
	defer activeWorkers.Add(-1)
	for {
		select {
		case in, ok := <-d.input.Chan():
			if !ok {
				return
			}
			out := d.apply(in)
			if d.output.SendContext(d.ctx, out) != nil {
				return
			}
		case <-d.ctx.Done():
			return
		}
	}
}

// apply runs the user transform under panic recovery, timing it with
// userFn (entry/exit of the user function) — distinct from egress,
// which times the later reorder-buffer-to-caller handoff in Next.
func (d *parallelStage[A, B]) apply(in inEnvelope[A]) (env reorder.Envelope[B]) {
	env.Seq = in.seq
	stop := d.userFn.start()
	defer func() {
		if r := recover(); r != nil {
			env.Err = newFault(r)
		}
		stop()
	}()
	val, dropped, err := d.transform(d.ctx, in.val)
	env.Val, env.Dropped = val, dropped
	env.Err = err
	return
}

// Next implements Stage.Next: one call yields at most one output item.
// egress times the span from this call's entry to the moment an item is
// actually handed back to the caller out of the reorder buffer — the
// "egress from output channel" point named alongside ingress and
// user-function timing.
func (d *parallelStage[A, B]) Next(ctx context.Context) (B, error) {
	var zero B
	if d.eof {
		return zero, io.EOF
	}
	stopEgress := d.egress.start()

	for {
		if env, ok := d.buf.TryTake(); ok {
			d.inFlight--
			switch {
			case env.Err != nil:
				return d.surfaceFault(asFault(env.Err))
			case env.Dropped:
				continue
			default:
				stopEgress()
				emitStageEvent(&d.cfg, d.id, StageEgress, env.Seq, nil)
				return env.Val, nil
			}
		}

		if err := d.topUp(ctx); err != nil {
			return zero, err
		}

		if d.upstreamDone && d.inFlight == 0 {
			d.shutdown()
			if d.upstreamFault != nil {
				return d.surfaceFault(asFault(d.upstreamFault))
			}
			d.eof = true
			emitStageEvent(&d.cfg, d.id, StageEOF, d.nextSeq, nil)
			return zero, io.EOF
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case env, ok := <-d.output.Chan():
			if !ok {
				d.eof = true
				return zero, io.EOF
			}
			d.buf.Insert(env.Seq, env)
		}
	}
}

// surfaceFault stores f in the terminal slot and panics with it,
// mirroring scope.Scope.Wait's re-panic of a *scope.PanicError. Every
// call after this one observes end-of-stream.
func (d *parallelStage[A, B]) surfaceFault(f *Fault) (B, error) {
	d.fault = f
	d.faultSurfaced = true
	d.eof = true
	emitStageEvent(&d.cfg, d.id, StageFaulted, d.nextSeq, f)
	d.shutdown()
	panic(f)
}

// topUp is phase 1 of Next: pull from upstream while under max_in_flight
// and upstream isn't exhausted, assigning sequence numbers.
func (d *parallelStage[A, B]) topUp(ctx context.Context) error {
	for !d.upstreamDone && d.inFlight < d.cfg.maxInFlight {
		val, err := d.pullUpstream(ctx)
		if err != nil {
			if err == io.EOF {
				d.upstreamDone = true
				d.input.Close()
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
				return err
			}
			d.upstreamFault = err
			d.upstreamDone = true
			d.input.Close()
			return nil
		}

		seq := d.nextSeq
		d.nextSeq++
		stop := d.ingress.start()
		if err := d.input.SendContext(ctx, inEnvelope[A]{seq: seq, val: val}); err != nil {
			return err
		}
		stop()
		emitStageEvent(&d.cfg, d.id, StageIngress, seq, nil)
		d.inFlight++
	}
	return nil
}

// pullUpstream calls upstream.Next, converting a panic into a plain
// error so topUp can treat it identically to an upstream fault returned
// normally ("upstream that panics is treated as a fault").
func (d *parallelStage[A, B]) pullUpstream(ctx context.Context) (val A, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newFault(r)
		}
	}()
	return d.upstream.Next(ctx)
}

// Close triggers shutdown: close the input channel, join every worker,
// then close the output channel. Safe to call more than once and safe
// to call concurrently with a caller still draining via Next (though
// spec.md's single-consumer contract means that is not expected).
func (d *parallelStage[A, B]) Close() error {
	d.shutdown()
	return nil
}

func (d *parallelStage[A, B]) shutdown() {
	d.shutdownOnce.Do(func() {
		d.cancel()
		d.input.Close()

		joined := make(chan struct{})
		go func() {
			d.launcher.join()
			close(joined)
		}()

	drain:
		for {
			select {
			case _, ok := <-d.output.Chan():
				if !ok {
					break drain
				}
			case <-joined:
				for {
					select {
					case _, ok := <-d.output.Chan():
						if !ok {
							break drain
						}
					default:
						break drain
					}
				}
			}
		}
		<-joined
		d.output.Close()
	})
}
