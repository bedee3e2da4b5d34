package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/janaframework/jana/core/arrow"
	"github.com/stretchr/testify/require"
)

type fakeArrow struct {
	arrow.Arrow
	name  string
	execs atomic.Int64
}

func (f *fakeArrow) Name() string                { return f.name }
func (f *fakeArrow) Execute(loc int) (arrow.Result, error) {
	f.execs.Add(1)
	return arrow.KeepGoing, nil
}

type fakeScheduler struct {
	mu     sync.Mutex
	calls  int
	arrows []*fakeArrow
}

func (s *fakeScheduler) NextAssignment(prev arrow.Arrow) (arrow.Arrow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.arrows) == 0 {
		return nil, false
	}
	a := s.arrows[s.calls%len(s.arrows)]
	s.calls++
	return a, true
}

func TestWorkerExecutesAssignmentsUntilStopped(t *testing.T) {
	a := &fakeArrow{name: "x"}
	sched := &fakeScheduler{arrows: []*fakeArrow{a}}
	w := New(Config{ID: 1, MaxBackoff: time.Millisecond}, sched, nil)

	go w.Run()
	time.Sleep(20 * time.Millisecond)
	w.RequestStop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	require.Greater(t, a.execs.Load(), int64(0))
}

func TestWorkerBacksOffWhenNoAssignment(t *testing.T) {
	sched := &fakeScheduler{}
	w := New(Config{ID: 2, MaxBackoff: 5 * time.Millisecond}, sched, nil)

	go w.Run()
	time.Sleep(15 * time.Millisecond)
	w.RequestStop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop while idle")
	}
}

func TestDeclareTimeoutStopsRunLoop(t *testing.T) {
	a := &fakeArrow{name: "x"}
	sched := &fakeScheduler{arrows: []*fakeArrow{a}}
	w := New(Config{ID: 3, MaxBackoff: time.Millisecond}, sched, nil)

	go w.Run()
	time.Sleep(5 * time.Millisecond)
	w.DeclareTimeout()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after timeout")
	}
	require.Equal(t, TimedOut, w.State())
}

func TestLastArrowNameTracksMostRecentExecution(t *testing.T) {
	a := &fakeArrow{name: "tracked"}
	sched := &fakeScheduler{arrows: []*fakeArrow{a}}
	w := New(Config{ID: 4, MaxBackoff: time.Millisecond}, sched, nil)

	go w.Run()
	time.Sleep(10 * time.Millisecond)
	w.RequestStop()
	<-w.Done()

	require.Equal(t, "tracked", w.LastArrowName())
	require.Greater(t, w.LastHeartbeatUnixNano(), int64(0))
}
