package reorder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferInOrderPassthrough(t *testing.T) {
	b := New[int]()
	b.Insert(0, Envelope[int]{Seq: 0, Val: 10})

	env, ok := b.TryTake()
	require.True(t, ok)
	assert.Equal(t, 10, env.Val)
	assert.Equal(t, uint64(1), b.Next())
}

func TestBufferHoldsOutOfOrder(t *testing.T) {
	b := New[int]()
	b.Insert(1, Envelope[int]{Seq: 1, Val: 20})

	_, ok := b.TryTake()
	assert.False(t, ok, "sequence 0 hasn't arrived yet")
	assert.Equal(t, 1, b.Len())

	b.Insert(0, Envelope[int]{Seq: 0, Val: 10})

	env, ok := b.TryTake()
	require.True(t, ok)
	assert.Equal(t, 10, env.Val)

	env, ok = b.TryTake()
	require.True(t, ok)
	assert.Equal(t, 20, env.Val)

	assert.Equal(t, 0, b.Len())
}

func TestBufferReleasesContiguousRun(t *testing.T) {
	b := New[int]()
	for _, seq := range []uint64{3, 1, 2, 0} {
		b.Insert(seq, Envelope[int]{Seq: seq, Val: int(seq) * 10})
	}

	var got []int
	for {
		env, ok := b.TryTake()
		if !ok {
			break
		}
		got = append(got, env.Val)
	}
	assert.Equal(t, []int{0, 10, 20, 30}, got)
}

func TestBufferPropagatesDroppedAndErr(t *testing.T) {
	b := New[int]()
	b.Insert(0, Envelope[int]{Seq: 0, Dropped: true})

	env, ok := b.TryTake()
	require.True(t, ok)
	assert.True(t, env.Dropped)

	failure := errors.New("boom")
	b.Insert(1, Envelope[int]{Seq: 1, Err: failure})

	env, ok = b.TryTake()
	require.True(t, ok)
	assert.Equal(t, failure, env.Err)
}

func TestBufferDuplicateInsertPanics(t *testing.T) {
	b := New[int]()
	b.Insert(0, Envelope[int]{Seq: 0, Val: 1})

	assert.Panics(t, func() {
		b.Insert(0, Envelope[int]{Seq: 0, Val: 2})
	})
}
