package arrow

import (
	"sync"
	"testing"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/jfactory"
	"github.com/janaframework/jana/pkg/mailbox"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mu    sync.Mutex
	items []*jevent.Event
}

func newFakePool(n int) *fakePool {
	p := &fakePool{}
	for i := 0; i < n; i++ {
		p.items = append(p.items, jevent.New(nil))
	}
	return p
}

func (p *fakePool) Get(loc int) (*jevent.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return nil, false
	}
	ev := p.items[len(p.items)-1]
	p.items = p.items[:len(p.items)-1]
	return ev, true
}

func (p *fakePool) Put(ev *jevent.Event, loc int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.Reset()
	p.items = append(p.items, ev)
}

type countingSource struct {
	name      string
	chunkSize int
	remaining int
}

func (s *countingSource) Name() string                           { return s.name }
func (s *countingSource) ChunkSize() int                          { return s.chunkSize }
func (s *countingSource) RunNumber() int32                        { return 1 }
func (s *countingSource) Factories() *jfactory.FactorySet         { return nil }
func (s *countingSource) Next(ev *jevent.Event) (SourceStatus, error) {
	if s.remaining <= 0 {
		return SourceFinished, nil
	}
	s.remaining--
	return SourceSuccess, nil
}

func TestSourceArrowAbortsWithoutPartialEmission(t *testing.T) {
	pool := newFakePool(1) // fewer events than chunksize
	outbox := mailbox.New[*jevent.Event](16, 1)
	src := &countingSource{name: "gen", chunkSize: 4, remaining: 10}
	a := NewSourceArrow(src, pool, outbox, nil)

	res, err := a.Execute(0)
	require.NoError(t, err)
	require.Equal(t, ComeBackLater, res)
	require.Equal(t, 0, outbox.Depth())
}

func TestSourceArrowPushesFullChunk(t *testing.T) {
	pool := newFakePool(8)
	outbox := mailbox.New[*jevent.Event](16, 1)
	src := &countingSource{name: "gen", chunkSize: 4, remaining: 10}
	a := NewSourceArrow(src, pool, outbox, nil)

	res, err := a.Execute(0)
	require.NoError(t, err)
	require.Equal(t, KeepGoing, res)
	require.Equal(t, 4, outbox.Depth())
}

func TestSourceArrowReportsFinished(t *testing.T) {
	pool := newFakePool(8)
	outbox := mailbox.New[*jevent.Event](16, 1)
	src := &countingSource{name: "gen", chunkSize: 4, remaining: 0}
	a := NewSourceArrow(src, pool, outbox, nil)

	res, err := a.Execute(0)
	require.NoError(t, err)
	require.Equal(t, ArrowFinished, res)
	require.True(t, a.UpstreamFinished())
}

func TestStageArrowTransformsPoppedChunk(t *testing.T) {
	inbox := mailbox.New[*jevent.Event](16, 1)
	outbox := mailbox.New[*jevent.Event](16, 1)

	evs := []*jevent.Event{jevent.New(nil), jevent.New(nil)}
	for _, e := range evs {
		e.SetEventNumber(1)
	}
	inbox.Push(evs, len(evs), 0)

	var touched int
	a := NewStageArrow("double", func(ev *jevent.Event) error {
		touched++
		return nil
	}, inbox, outbox, false, 16, nil)

	res, err := a.Execute(0)
	require.NoError(t, err)
	require.Equal(t, KeepGoing, res)
	require.Equal(t, 2, touched)
	require.Equal(t, 2, outbox.Depth())
}

func TestSequentialArrowRejectsConcurrentSlot(t *testing.T) {
	inbox := mailbox.New[*jevent.Event](16, 1)
	outbox := mailbox.New[*jevent.Event](16, 1)
	a := NewStageArrow("seq", func(ev *jevent.Event) error { return nil }, inbox, outbox, false, 16, nil)

	require.True(t, a.AcquireSlot())
	require.False(t, a.AcquireSlot(), "a non-parallel arrow must reject a second concurrent slot")
	a.ReleaseSlot()
	require.True(t, a.AcquireSlot())
}

type recordingProcessor struct {
	name  string
	calls []string
}

func (p *recordingProcessor) Name() string       { return p.name }
func (p *recordingProcessor) ThreadSafe() bool   { return true }
func (p *recordingProcessor) BeginRun(ev *jevent.Event) error {
	p.calls = append(p.calls, "begin")
	return nil
}
func (p *recordingProcessor) EndRun() error {
	p.calls = append(p.calls, "end")
	return nil
}
func (p *recordingProcessor) Process(ev *jevent.Event) error {
	p.calls = append(p.calls, "process")
	return nil
}

func TestSinkArrowCrossesRunBoundaryPerProcessor(t *testing.T) {
	inbox := mailbox.New[*jevent.Event](16, 1)
	pool := newFakePool(0)
	proc := &recordingProcessor{name: "writer"}

	ev1 := jevent.New(nil)
	ev1.SetRunNumber(1)
	ev2 := jevent.New(nil)
	ev2.SetRunNumber(1)
	ev3 := jevent.New(nil)
	ev3.SetRunNumber(2)
	inbox.Push([]*jevent.Event{ev1, ev2, ev3}, 3, 0)

	a := NewSinkArrow("writer-arrow", []Processor{proc}, inbox, pool, false, 16, nil)
	res, err := a.Execute(0)
	require.NoError(t, err)
	require.Equal(t, KeepGoing, res)

	require.Equal(t, []string{
		"begin", "process",
		"process",
		"end", "begin", "process",
	}, proc.calls)
}
