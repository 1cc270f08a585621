package pario

import (
	"time"

	"github.com/google/uuid"

	"github.com/rshape/pario/metrics"
)

// StageEventKind identifies what a StageEvent reports.
type StageEventKind int

const (
	// StageIngress fires when an item is assigned a sequence number and
	// handed to a worker.
	StageIngress StageEventKind = iota
	// StageEgress fires when an item actually leaves the reorder buffer
	// and is handed back to the caller from Next.
	StageEgress
	// StageFaulted fires once, when a stage surfaces a Fault.
	StageFaulted
	// StageEOF fires once, when a stage reaches end-of-stream cleanly.
	StageEOF
)

func (k StageEventKind) String() string {
	switch k {
	case StageIngress:
		return "ingress"
	case StageEgress:
		return "egress"
	case StageFaulted:
		return "faulted"
	case StageEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// StageEvent is delivered to a WithOnStageEvent callback, tagged with
// the emitting stage's ID so a multi-stage pipeline can attribute
// events to the right stage.
type StageEvent struct {
	StageID uuid.UUID
	Kind    StageEventKind
	Seq     uint64
	Err     error
}

func emitStageEvent(cfg *config, id uuid.UUID, kind StageEventKind, seq uint64, err error) {
	if cfg.onStageEvent == nil {
		return
	}
	cfg.onStageEvent(StageEvent{StageID: id, Kind: kind, Seq: seq, Err: err})
}

// hook is a no-op-by-default timing probe (component H): when disabled,
// start returns a no-op stop func so profiling carries zero overhead in
// the common case, matching the WithOnMetrics opt-in pattern in
// pario/scope.
type hook struct {
	enabled bool
	hist    metrics.Histogram
}

func newHook(enabled bool, provider metrics.Provider, name string) hook {
	if !enabled || provider == nil {
		return hook{}
	}
	return hook{enabled: true, hist: provider.Histogram(name, metrics.WithUnit("s"))}
}

// start begins timing and returns a func to call once the measured
// span ends. Safe to call on a disabled hook.
func (h hook) start() func() {
	if !h.enabled {
		return func() {}
	}
	t0 := time.Now()
	return func() {
		h.hist.Record(time.Since(t0).Seconds())
	}
}

// Profiler is implemented by stages constructed with WithProfileIngress,
// WithProfileEgress, or WithProfileUserFn, exposing the accumulated
// timing distributions.
type Profiler interface {
	Profile() map[string]metrics.HistSnapshot
}

// Profile implements Profiler for any stage built on parallelStage, iff
// its config carries a *metrics.BasicProvider (the default profiling
// provider; a custom provider supplied via WithMetricsProvider is not
// guaranteed to support snapshotting).
func (d *parallelStage[A, B]) Profile() map[string]metrics.HistSnapshot {
	bp, ok := d.cfg.metrics.(*metrics.BasicProvider)
	if !ok || bp == nil {
		return nil
	}
	out := make(map[string]metrics.HistSnapshot)
	if d.cfg.profileIngress {
		out["ingress"] = bp.HistogramSnapshot("pario_ingress")
	}
	if d.cfg.profileEgress {
		out["egress"] = bp.HistogramSnapshot("pario_egress")
	}
	if d.cfg.profileUserFn {
		out["userfn"] = bp.HistogramSnapshot("pario_userfn")
	}
	return out
}
