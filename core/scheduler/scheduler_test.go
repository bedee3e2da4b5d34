package scheduler

import (
	"testing"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/pkg/mailbox"
	"github.com/stretchr/testify/require"

	arrowpkg "github.com/janaframework/jana/core/arrow"
)

func newStage(name string, in, out *mailbox.Mailbox[*jevent.Event], parallel bool) arrowpkg.Arrow {
	return arrowpkg.NewStageArrow(name, func(*jevent.Event) error { return nil }, in, out, parallel, 4, nil)
}

func TestRoundRobinCyclesThroughArrows(t *testing.T) {
	top := topology.New()
	mb := mailbox.New[*jevent.Event](4, 1)
	a := newStage("a", mb, mb, true)
	b := newStage("b", mb, mb, true)
	top.Register(a)
	top.Register(b)

	sched := New(top)

	got1, ok := sched.NextAssignment(nil)
	require.True(t, ok)
	require.Equal(t, "a", got1.Name())

	got2, ok := sched.NextAssignment(nil)
	require.True(t, ok)
	require.Equal(t, "b", got2.Name())

	got3, ok := sched.NextAssignment(nil)
	require.True(t, ok)
	require.Equal(t, "a", got3.Name())
}

func TestSequentialArrowNotReassignedWhileOccupied(t *testing.T) {
	top := topology.New()
	mb := mailbox.New[*jevent.Event](4, 1)
	seq := newStage("seq", mb, mb, false)
	top.Register(seq)

	sched := New(top)

	got, ok := sched.NextAssignment(nil)
	require.True(t, ok)
	require.Equal(t, "seq", got.Name())

	_, ok = sched.NextAssignment(nil)
	require.False(t, ok, "a second worker must not be assigned into an occupied sequential arrow")
}

func TestReleasingPreviousAssignmentFreesItForReassignment(t *testing.T) {
	top := topology.New()
	mb := mailbox.New[*jevent.Event](4, 1)
	seq := newStage("seq", mb, mb, false)
	top.Register(seq)

	sched := New(top)
	got, ok := sched.NextAssignment(nil)
	require.True(t, ok)

	got2, ok := sched.NextAssignment(got)
	require.True(t, ok)
	require.Equal(t, "seq", got2.Name())
}

func TestFinishedUpstreamIsSkipped(t *testing.T) {
	top := topology.New()
	mb := mailbox.New[*jevent.Event](4, 1)
	a := newStage("a", mb, mb, true)
	b := newStage("b", mb, mb, true)
	top.Register(a)
	top.Register(b)
	top.Connect(a, b)

	a.SetUpstreamFinished()
	_ = a.AcquireSlot()
	a.ReleaseSlot() // drops thread count to 0 with upstream finished -> Finished

	sched := New(top)
	got, ok := sched.NextAssignment(nil)
	require.True(t, ok)
	require.Equal(t, "b", got.Name())
}
