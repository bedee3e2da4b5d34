package arrow

import (
	"runtime"
	"sync"
	"time"

	concpool "github.com/sourcegraph/conc/pool"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/internal/obsmetrics"
	"github.com/janaframework/jana/pkg/mailbox"
)

// StageFunc transforms a single event in place. Returning an error does not
// stop the rest of the popped chunk, and the event is still pushed
// downstream; Execute returns the first such error of the chunk.
type StageFunc func(ev *jevent.Event) error

// stageArrow implements spec §4.E's Stage arrow (parallel map): pop a
// chunk, run fn over each event, push to outbox. Parallel fan-out is
// bounded exactly like core/dispatcher.Fanout.Dispatch in the retrieval
// pack bounds its subscriber delivery: a conc/pool capped at
// runtime.GOMAXPROCS(0) rather than one goroutine per event.
type stageArrow struct {
	base
	fn       StageFunc
	inbox    *mailbox.Mailbox[*jevent.Event]
	outbox   *mailbox.Mailbox[*jevent.Event]
	capacity int

	// pending holds already-transformed events that a previous Execute
	// reserved less outbox capacity for than it had; they're pushed
	// before any new chunk is popped from inbox.
	pending []*jevent.Event
}

// NewStageArrow constructs a Stage arrow. When parallel is true, events
// within a popped chunk are processed concurrently up to GOMAXPROCS.
func NewStageArrow(name string, fn StageFunc, inbox, outbox *mailbox.Mailbox[*jevent.Event], parallel bool, chunkCapacity int, metrics *obsmetrics.Registry) Arrow {
	return &stageArrow{
		base:     newBase(name, KindStage, parallel, metrics),
		fn:       fn,
		inbox:    inbox,
		outbox:   outbox,
		capacity: chunkCapacity,
	}
}

func (a *stageArrow) Initialize() error { return nil }
func (a *stageArrow) Finalize() error   { return nil }

func (a *stageArrow) Execute(loc int) (Result, error) {
	var chunk []*jevent.Event
	var fnErr error

	if len(a.pending) > 0 {
		chunk = a.pending
		a.pending = nil
	} else {
		buf := make([]*jevent.Event, a.capacity)
		n := a.inbox.Pop(buf, a.capacity, loc)
		if n == 0 {
			if a.UpstreamFinished() {
				return ArrowFinished, nil
			}
			return ComeBackLater, nil
		}
		chunk = buf[:n]

		start := time.Now()
		if a.parallel {
			workers := runtime.GOMAXPROCS(0)
			if workers > n {
				workers = n
			}
			p := concpool.New().WithMaxGoroutines(workers)
			var errMu sync.Mutex
			for _, ev := range chunk {
				ev := ev
				p.Go(func() {
					if err := a.fn(ev); err != nil {
						errMu.Lock()
						if fnErr == nil {
							fnErr = err
						}
						errMu.Unlock()
					}
				})
			}
			p.Wait()
		} else {
			for _, ev := range chunk {
				if err := a.fn(ev); err != nil && fnErr == nil {
					fnErr = err
				}
			}
		}
		if a.metrics != nil {
			a.metrics.ObserveArrowExecution(a.name, "stage", time.Since(start))
		}
	}

	// Honor the mailbox's reserve/commit contract like the Source arrow
	// does: reserve before pushing, and hold back whatever didn't fit for
	// the next Execute rather than pushing more than was reserved.
	reserved := a.outbox.Reserve(len(chunk), loc)
	toPush := chunk[:reserved]
	leftover := chunk[reserved:]
	mbStatus := a.outbox.Push(toPush, len(toPush), loc)
	if len(leftover) > 0 {
		a.pending = leftover
		return ComeBackLater, fnErr
	}

	if a.UpstreamFinished() && a.inbox.Depth() == 0 {
		return ArrowFinished, fnErr
	}
	if mbStatus == mailbox.Congested {
		return ComeBackLater, fnErr
	}
	return KeepGoing, fnErr
}
