// Package reorder implements the sequence-keyed buffer that restores
// source order to items completed by a pool of concurrent workers.
//
// Unlike a typical fan-in coordinator (compare ygrebnov-workers'
// reorderer, which owns a goroutine and a results channel), Buffer is a
// passive data structure: it has no goroutine of its own and is touched
// only by its caller's goroutine, so the stage driver can interleave
// buffer operations with channel sends/receives in a single select loop.
package reorder

// Envelope is a sequence-numbered item flowing through a stage. Err
// carries a fault raised while producing Val; Dropped marks a filtered
// item that should be skipped rather than delivered.
type Envelope[T any] struct {
	Seq     uint64
	Val     T
	Err     error
	Dropped bool
}

// Buffer holds out-of-order envelopes until they can be released in
// strictly increasing sequence order starting from 0.
type Buffer[T any] struct {
	next    uint64
	pending map[uint64]Envelope[T]
}

// New returns an empty Buffer ready to receive envelopes starting at
// sequence 0.
func New[T any]() *Buffer[T] {
	return &Buffer[T]{pending: make(map[uint64]Envelope[T])}
}

// Insert records env for later release via TryTake. It panics if seq has
// already been inserted and not yet taken — a caller bug, since every
// sequence number must be produced exactly once.
func (b *Buffer[T]) Insert(seq uint64, env Envelope[T]) {
	if _, dup := b.pending[seq]; dup {
		panic("reorder: duplicate insert for sequence number")
	}
	b.pending[seq] = env
}

// TryTake returns the envelope for the current cursor position and
// advances the cursor, if that envelope has already been inserted.
// It returns ok == false when the next envelope in sequence hasn't
// arrived yet.
func (b *Buffer[T]) TryTake() (env Envelope[T], ok bool) {
	env, ok = b.pending[b.next]
	if !ok {
		return Envelope[T]{}, false
	}
	delete(b.pending, b.next)
	b.next++
	return env, true
}

// Len reports the number of envelopes currently held, awaiting release.
func (b *Buffer[T]) Len() int {
	return len(b.pending)
}

// Next reports the sequence number TryTake will next release.
func (b *Buffer[T]) Next() uint64 {
	return b.next
}
