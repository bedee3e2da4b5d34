package engine

import (
	"testing"
	"time"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/jfactory"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/pkg/eventpool"
	"github.com/janaframework/jana/pkg/mailbox"
	"github.com/stretchr/testify/require"

	arrowpkg "github.com/janaframework/jana/core/arrow"
)

type fakeCountingSource struct {
	name      string
	remaining int
}

func (s *fakeCountingSource) Name() string                                   { return s.name }
func (s *fakeCountingSource) ChunkSize() int                                 { return 1 }
func (s *fakeCountingSource) RunNumber() int32                               { return 1 }
func (s *fakeCountingSource) Factories() *jfactory.FactorySet                { return nil }
func (s *fakeCountingSource) Next(ev *jevent.Event) (arrowpkg.SourceStatus, error) {
	if s.remaining <= 0 {
		return arrowpkg.SourceFinished, nil
	}
	s.remaining--
	return arrowpkg.SourceSuccess, nil
}

func TestDebugEngineDrainsToCompletion(t *testing.T) {
	top := topology.New()
	pool := eventpool.New(4, 1, nil, nil)
	mid := mailbox.New[*jevent.Event](4, 1)
	sunk := mailbox.New[*jevent.Event](4, 1)

	src := &fakeCountingSource{name: "gen", remaining: 2}
	source := arrowpkg.NewSourceArrow(src, pool, mid, nil)

	processed := 0
	sink := arrowpkg.NewStageArrow("sink", func(ev *jevent.Event) error {
		processed++
		return nil
	}, mid, sunk, false, 4, nil)

	top.Register(source)
	top.Register(sink)
	top.Connect(source, sink)

	eng := New(top, time.Millisecond)
	err := eng.Run()
	require.NoError(t, err)
	require.True(t, top.AllFinished())
	require.Equal(t, 2, processed)
}
