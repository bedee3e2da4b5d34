package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveCommitRoundTrip(t *testing.T) {
	mb := New[int](4, 1)
	k := mb.Reserve(4, 0)
	require.Equal(t, 4, k)

	status := mb.Push([]int{1, 2, 3, 4}, k, 0)
	require.Equal(t, Congested, status)
	require.Equal(t, 4, mb.Depth())

	out := make([]int, 4)
	n := mb.Pop(out, 4, 0)
	require.Equal(t, 4, n)
	require.Equal(t, []int{1, 2, 3, 4}, out)
	require.Equal(t, 0, mb.Depth())
}

func TestReserveReturnsLessWhenPartiallyFull(t *testing.T) {
	mb := New[int](4, 1)
	mb.Push([]int{1, 2}, mb.Reserve(2, 0), 0)

	k := mb.Reserve(4, 0)
	require.Equal(t, 2, k)
}

func TestReserveReturnsZeroWhenFull(t *testing.T) {
	mb := New[int](2, 1)
	mb.Push([]int{1, 2}, mb.Reserve(2, 0), 0)
	require.Equal(t, 0, mb.Reserve(1, 0))
}

func TestPushAfterFinishedRejected(t *testing.T) {
	mb := New[int](4, 1)
	mb.MarkFinished()
	status := mb.Push([]int{1}, 1, 0)
	require.Equal(t, Finished, status)
}

func TestLocalityPartitioningIsolatesCapacity(t *testing.T) {
	mb := New[int](4, 2) // 2 slots per partition
	require.Equal(t, 2, mb.Reserve(10, 0))
	require.Equal(t, 2, mb.Reserve(10, 1))
}

func TestUpstreamDownstreamWiring(t *testing.T) {
	a := New[int](1, 1)
	b := New[int](1, 1)
	a.AttachDownstream(b)
	b.AttachUpstream(a)

	require.Same(t, b, a.Downstreams()[0])
	require.Same(t, a, b.Upstreams()[0])
}
