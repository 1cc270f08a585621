// Package chanx provides context-aware, goroutine-safe channel utilities.
//
// Go channels are powerful but have sharp edges: sends to closed channels
// panic, blocked sends leak goroutines, and combining channels with
// context cancellation requires careful select statements.
//
// chanx provides building blocks that handle these concerns:
//
//   - [Send] and [Recv]: context-aware send and receive that unblock on
//     cancellation instead of leaking goroutines.
//   - [OrDone]: wraps a channel to respect context cancellation.
//   - [Drain]: discards remaining values to unblock producers.
//   - [Closable]: an idempotent-close channel wrapper that converts
//     send-on-closed panics to errors, used as the input/output channel
//     of every stage.
//
// This is a deliberately narrow set: pario's stages are single-producer,
// single-consumer, and order-preserving, so chanx carries none of the
// fan-in/fan-out/windowing surface a general channel toolkit might.
//
// All functions that spawn goroutines tie them to a [context.Context],
// ensuring they terminate when the context is canceled.
package chanx
