package pario

import (
	"runtime"

	"github.com/google/uuid"

	"github.com/rshape/pario/metrics"
)

// config holds the resolved pool parameters for a parallel stage
// (component C): worker count, max in-flight items, and optional
// profiling instrumentation.
type config struct {
	threads     int
	maxInFlight int

	profileIngress bool
	profileEgress  bool
	profileUserFn  bool
	metrics        metrics.Provider

	onStageEvent func(StageEvent)
}

// Option configures a stage. Options that validate caller input (rather
// than reject a local programmer error) return an error that the stage
// constructor passes back (via resolveConfig),
// following ygrebnov-workers/config.go's style; options that catch a
// plainly invalid argument panic immediately, following teacher's own
// WithQueueSize/NewSemaphore convention.
type Option func(*config) error

func defaultConfig() config {
	n := runtime.NumCPU()
	return config{
		threads:     n,
		maxInFlight: n,
	}
}

// resolveConfig applies opts over the defaults, rejects a
// misconfigured pool (worker_count == 0 or max_in_flight == 0, per
// spec.md §7b: "rejected eagerly" at construction, as a regular error
// rather than a panic), and clamps max_in_flight up to worker_count (a
// worker with no item in flight cannot contribute).
func resolveConfig(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, err
		}
	}

	if cfg.threads == 0 {
		return config{}, misconfigured("worker_count must not be zero")
	}
	if cfg.maxInFlight == 0 {
		return config{}, misconfigured("max_in_flight must not be zero")
	}
	if cfg.maxInFlight < cfg.threads {
		cfg.maxInFlight = cfg.threads
	}
	return cfg, nil
}

// WithThreads overrides the worker count (default: runtime.NumCPU(),
// pario's Go-native stand-in for the physical-core-count default of the
// original implementation — see DESIGN.md).
//
// n == 0 is rejected eagerly by the stage constructor (ErrMisconfigured),
// not here: unlike teacher's NewSemaphore/WithQueueSize, a zero worker
// count must surface as the documented recoverable error, not a panic,
// per spec.md §7b. A negative n is still a programmer error and panics
// immediately.
func WithThreads(n int) Option {
	if n < 0 {
		panic("pario: WithThreads requires n >= 0")
	}
	return func(c *config) error {
		c.threads = n
		return nil
	}
}

// WithMaxInFlight overrides the bound on items simultaneously inside a
// stage (input channel + workers + output channel + reorder buffer).
// It is clamped up to the worker count if set lower.
//
// m == 0 is rejected eagerly by the stage constructor (ErrMisconfigured);
// see WithThreads for why this differs from a negative m, which panics.
func WithMaxInFlight(m int) Option {
	if m < 0 {
		panic("pario: WithMaxInFlight requires m >= 0")
	}
	return func(c *config) error {
		c.maxInFlight = m
		return nil
	}
}

// WithProfileIngress enables elapsed-time instrumentation at the point
// an item enters a stage's input channel.
func WithProfileIngress() Option {
	return func(c *config) error {
		c.profileIngress = true
		if c.metrics == nil {
			c.metrics = metrics.NewBasicProvider()
		}
		return nil
	}
}

// WithProfileEgress enables elapsed-time instrumentation of the span
// from a Next call's entry to the moment a result actually leaves a
// stage's reorder buffer, bound for the caller.
func WithProfileEgress() Option {
	return func(c *config) error {
		c.profileEgress = true
		if c.metrics == nil {
			c.metrics = metrics.NewBasicProvider()
		}
		return nil
	}
}

// WithProfileUserFn enables elapsed-time instrumentation of the user
// transform's own execution (entry/exit of the map/filter function),
// separate from the ingress and egress channel-boundary hooks.
func WithProfileUserFn() Option {
	return func(c *config) error {
		c.profileUserFn = true
		if c.metrics == nil {
			c.metrics = metrics.NewBasicProvider()
		}
		return nil
	}
}

// WithMetricsProvider supplies a custom metrics.Provider for profiling
// hooks instead of the default in-memory one. Implies profiling is in
// use; combine with WithProfileIngress/WithProfileEgress to pick which
// hook points are recorded.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(c *config) error {
		c.metrics = p
		return nil
	}
}

// WithOnStageEvent registers fn to be called for each StageEventKind
// this stage emits, tagged with the stage's uuid so a host composing
// several stages into one pipeline can tell which stage an event came
// from — e.g. stages built in a loop that would otherwise share a
// name. fn is called synchronously from whichever goroutine triggers
// the event; it must not block.
func WithOnStageEvent(fn func(StageEvent)) Option {
	return func(c *config) error {
		c.onStageEvent = fn
		return nil
	}
}

// newStageID is a package-level var so it can be swapped in tests that
// need deterministic stage identifiers; production code always uses
// uuid.New.
var newStageID = uuid.New
