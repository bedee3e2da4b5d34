package controller

import (
	"testing"
	"time"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/internal/config"
	"github.com/janaframework/jana/pkg/eventpool"
	"github.com/janaframework/jana/pkg/mailbox"
	"github.com/stretchr/testify/require"

	arrowpkg "github.com/janaframework/jana/core/arrow"
)

func testSettings() config.Settings {
	s := config.Default()
	s.PollInterval = 5 * time.Millisecond
	s.NThreads = 1
	return s
}

func TestScaleUpStartsWorkersAndScaleDownRetainsSlots(t *testing.T) {
	top := topology.New()
	mb := mailbox.New[*jevent.Event](4, 1)
	a := arrowpkg.NewStageArrow("a", func(*jevent.Event) error { return nil }, mb, mb, true, 4, nil)
	top.Register(a)

	pool := eventpool.New(4, 1, nil, nil)
	c := New(top, pool, testSettings(), nil)

	c.Scale(2)
	require.Len(t, c.workers, 2)

	c.Scale(1)
	require.Len(t, c.workers, 2, "scale-down retains worker slots, it does not delete them")
}

func TestRunReturnsReportWhenTopologyDrains(t *testing.T) {
	top := topology.New()
	in := mailbox.New[*jevent.Event](4, 1)
	a := arrowpkg.NewStageArrow("only", func(*jevent.Event) error { return nil }, in, in, true, 4, nil)
	top.Register(a)
	a.SetUpstreamFinished()

	pool := eventpool.New(4, 1, nil, nil)
	c := New(top, pool, testSettings(), nil)

	report := c.Run()
	require.True(t, report.EventsFinished)
}

func TestStopUnblocksRun(t *testing.T) {
	top := topology.New()
	in := mailbox.New[*jevent.Event](4, 1)
	a := arrowpkg.NewStageArrow("only", func(*jevent.Event) error { return nil }, in, in, true, 4, nil)
	top.Register(a)

	pool := eventpool.New(4, 1, nil, nil)
	c := New(top, pool, testSettings(), nil)

	done := make(chan Report, 1)
	go func() { done <- c.Run() }()
	time.Sleep(10 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not unblock after Stop")
	}
}
