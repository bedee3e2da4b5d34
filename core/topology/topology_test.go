package topology

import (
	"testing"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/pkg/mailbox"
	"github.com/stretchr/testify/require"

	arrowpkg "github.com/janaframework/jana/core/arrow"
)

func TestPropagateFinishedMarksDirectDownstreamOnly(t *testing.T) {
	top := New()
	in := mailbox.New[*jevent.Event](4, 1)
	out := mailbox.New[*jevent.Event](4, 1)
	mid := arrowpkg.NewStageArrow("mid", func(*jevent.Event) error { return nil }, in, out, false, 4, nil)
	out2 := mailbox.New[*jevent.Event](4, 1)
	down := arrowpkg.NewStageArrow("down", func(*jevent.Event) error { return nil }, out, out2, false, 4, nil)

	top.Register(mid)
	top.Register(down)
	top.Connect(mid, down)

	require.False(t, down.UpstreamFinished())
	top.PropagateFinished(mid)
	require.True(t, down.UpstreamFinished())
}

func TestAllFinishedRequiresEveryArrow(t *testing.T) {
	top := New()
	in := mailbox.New[*jevent.Event](4, 1)
	out := mailbox.New[*jevent.Event](4, 1)
	a := arrowpkg.NewStageArrow("a", func(*jevent.Event) error { return nil }, in, out, false, 4, nil)
	b := arrowpkg.NewStageArrow("b", func(*jevent.Event) error { return nil }, out, out, false, 4, nil)
	top.Register(a)
	top.Register(b)

	require.False(t, top.AllFinished())
}
