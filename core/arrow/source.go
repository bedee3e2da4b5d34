package arrow

import (
	"sync/atomic"
	"time"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/jfactory"
	"github.com/janaframework/jana/errs"
	"github.com/janaframework/jana/internal/obsmetrics"
	"github.com/janaframework/jana/pkg/mailbox"
)

// SourceStatus is what a Source's Next reports for a single event.
type SourceStatus int

const (
	SourceSuccess SourceStatus = iota
	SourceTryAgain
	SourceFinished
)

// Source is the user-supplied generator a Source arrow drives.
type Source interface {
	Name() string
	ChunkSize() int
	RunNumber() int32
	// Factories returns this source's factory overlay, merged into every
	// event it produces, or nil if it contributes none.
	Factories() *jfactory.FactorySet
	// Next populates ev with the next unit of data.
	Next(ev *jevent.Event) (SourceStatus, error)
}

// sourceArrow implements spec §4.E's Source arrow: reserve a full chunk,
// fill it from the pool, push whatever was collected.
type sourceArrow struct {
	base
	source  Source
	pool    EventSource
	outbox  *mailbox.Mailbox[*jevent.Event]
	eventNo atomic.Uint64
}

// NewSourceArrow constructs a Source arrow wrapping src, drawing events
// from pool and pushing completed chunks to outbox.
func NewSourceArrow(src Source, pool EventSource, outbox *mailbox.Mailbox[*jevent.Event], metrics *obsmetrics.Registry) Arrow {
	return &sourceArrow{
		base:   newBase(src.Name(), KindSource, false, metrics),
		source: src,
		pool:   pool,
		outbox: outbox,
	}
}

func (a *sourceArrow) Initialize() error { return nil }
func (a *sourceArrow) Finalize() error    { return nil }

// Execute implements spec §4.E's Source arrow algorithm:
//  1. Reserve a full chunk; abort with ComeBackLater if not reservable
//     (no partial emission).
//  2. Fill up to chunksize events from the pool, rebinding each to this
//     source and merging in its factory overlay.
//  3. On Success, accumulate; on TryAgain, stop early without pushing
//     (rollback-reservation: unused pool events go straight back, the
//     reservation is simply never committed); on Finished, mark
//     upstream-finished and stop.
func (a *sourceArrow) Execute(loc int) (Result, error) {
	start := time.Now()
	chunkSize := a.source.ChunkSize()
	if chunkSize < 1 {
		chunkSize = 1
	}

	reserved := a.outbox.Reserve(chunkSize, loc)
	if reserved < chunkSize {
		return ComeBackLater, nil
	}

	chunk := make([]*jevent.Event, 0, chunkSize)
	finished := false

	for i := 0; i < chunkSize; i++ {
		ev, ok := a.pool.Get(loc)
		if !ok {
			// Pool exhausted mid-fill: give back whatever we already
			// pulled and try again next round rather than commit a
			// short chunk.
			for _, e := range chunk {
				a.pool.Put(e, loc)
			}
			return ComeBackLater, nil
		}

		ev.SetEventNumber(a.eventNo.Add(1))
		ev.SetRunNumber(a.source.RunNumber())
		ev.SetSourceRef(arrowSourceRef{name: a.source.Name()})
		if overlay := a.source.Factories(); overlay != nil {
			ev.Factories().Merge(overlay)
		}

		status, err := a.source.Next(ev)
		if err != nil {
			a.pool.Put(ev, loc)
			for _, e := range chunk {
				a.pool.Put(e, loc)
			}
			return ComeBackLater, errs.New(errs.CodePerEventFailure,
				errs.WithComponent(a.source.Name()),
				errs.WithCause(err),
			)
		}

		switch status {
		case SourceSuccess:
			chunk = append(chunk, ev)
		case SourceTryAgain:
			a.pool.Put(ev, loc)
			for _, e := range chunk {
				a.pool.Put(e, loc)
			}
			return ComeBackLater, nil
		case SourceFinished:
			a.pool.Put(ev, loc)
			finished = true
		}
		if finished {
			break
		}
	}

	if len(chunk) == 0 {
		if finished {
			a.SetUpstreamFinished()
			return ArrowFinished, nil
		}
		return ComeBackLater, nil
	}

	mbStatus := a.outbox.Push(chunk, len(chunk), loc)
	if a.metrics != nil {
		a.metrics.ObserveArrowExecution(a.name, "source", time.Since(start))
	}

	if finished {
		a.SetUpstreamFinished()
		return ArrowFinished, nil
	}
	if mbStatus == mailbox.Congested {
		return ComeBackLater, nil
	}
	return KeepGoing, nil
}

type arrowSourceRef struct{ name string }

func (s arrowSourceRef) Name() string { return s.name }
