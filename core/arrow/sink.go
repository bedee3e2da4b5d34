package arrow

import (
	"context"
	"sync"
	"time"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/errs"
	"github.com/janaframework/jana/internal/obsmetrics"
	"github.com/janaframework/jana/pkg/mailbox"
)

// Processor is a user-supplied terminal handler registered on a Sink
// arrow. ThreadSafe determines whether the owning arrow may run
// concurrently; non-thread-safe processors must live on an arrow with
// IsParallel() == false.
type Processor interface {
	Name() string
	ThreadSafe() bool
	BeginRun(ev *jevent.Event) error
	EndRun() error
	Process(ev *jevent.Event) error
}

// processorState tracks each processor's own run-boundary crossing,
// independent of any Factory's state, serialized by its own lock (spec
// §4.E: "these transitions are serialized per processor via its own
// lock").
type processorState struct {
	mu         sync.Mutex
	proc       Processor
	runNumber  int32
	brunCalled bool
}

func newProcessorState(p Processor) *processorState {
	return &processorState{proc: p, runNumber: -1}
}

func (s *processorState) run(ev *jevent.Event) (err error) {
	s.mu.Lock()
	run := ev.RunNumber()
	if s.brunCalled && s.runNumber != run {
		if err := s.proc.EndRun(); err != nil {
			s.mu.Unlock()
			return enrichProcessorErr(s.proc, ev, err)
		}
		s.brunCalled = false
	}
	if !s.brunCalled {
		if err := s.proc.BeginRun(ev); err != nil {
			s.mu.Unlock()
			return enrichProcessorErr(s.proc, ev, err)
		}
		s.brunCalled = true
		s.runNumber = run
	}
	s.mu.Unlock()

	// Process itself runs unlocked: the lock here only guards the
	// BeginRun/EndRun state transitions above, not the user's per-event
	// work, so a ThreadSafe processor on a parallel sink still gets real
	// concurrency.
	defer func() {
		if r := recover(); r != nil {
			err = enrichProcessorErr(s.proc, ev, errs.New(errs.CodePerEventFailure,
				errs.WithComponent(s.proc.Name()),
				errs.WithMessage("panic during Process"),
			))
		}
	}()
	if err := s.proc.Process(ev); err != nil {
		return enrichProcessorErr(s.proc, ev, err)
	}
	return nil
}

func enrichProcessorErr(p Processor, ev *jevent.Event, err error) error {
	return errs.New(errs.CodePerEventFailure,
		errs.WithComponent(p.Name()),
		errs.WithCallStack(ev.CallGraph()),
		errs.WithCause(err),
	)
}

// sinkArrow implements spec §4.E's Sink arrow (terminal processor): pop a
// chunk, run every registered processor over each event, release events
// back to the pool.
type sinkArrow struct {
	base
	inbox      *mailbox.Mailbox[*jevent.Event]
	pool       EventSource
	processors []*processorState
	capacity   int
}

// NewSinkArrow constructs a Sink arrow running procs, in registration
// order, over every event popped from inbox.
func NewSinkArrow(name string, procs []Processor, inbox *mailbox.Mailbox[*jevent.Event], pool EventSource, parallel bool, chunkCapacity int, metrics *obsmetrics.Registry) Arrow {
	states := make([]*processorState, 0, len(procs))
	for _, p := range procs {
		states = append(states, newProcessorState(p))
	}
	return &sinkArrow{
		base:       newBase(name, KindSink, parallel, metrics),
		inbox:      inbox,
		pool:       pool,
		processors: states,
		capacity:   chunkCapacity,
	}
}

func (a *sinkArrow) Initialize() error { return nil }
func (a *sinkArrow) Finalize() error   { return nil }

func (a *sinkArrow) Execute(loc int) (Result, error) {
	buf := make([]*jevent.Event, a.capacity)
	n := a.inbox.Pop(buf, a.capacity, loc)
	if n == 0 {
		if a.UpstreamFinished() {
			return ArrowFinished, nil
		}
		return ComeBackLater, nil
	}
	chunk := buf[:n]

	start := time.Now()
	var firstErr error
	for _, ev := range chunk {
		ok := true
		for _, st := range a.processors {
			if err := st.run(ev); err != nil {
				ok = false
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if ok {
			a.metrics.ObserveEventProcessed(context.Background())
		}
		a.pool.Put(ev, loc)
	}
	if a.metrics != nil {
		a.metrics.ObserveArrowExecution(a.name, "sink", time.Since(start))
	}

	if firstErr != nil {
		return KeepGoing, firstErr
	}
	if a.UpstreamFinished() && a.inbox.Depth() == 0 {
		return ArrowFinished, nil
	}
	return KeepGoing, nil
}
