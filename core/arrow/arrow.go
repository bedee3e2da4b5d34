// Package arrow implements the three arrow kinds that make up a topology
// (spec component [Arrow]): Source, Stage, and Sink. Every arrow exposes a
// uniform Execute/Initialize/Finalize surface so the scheduler and worker
// run-loop never need to know which kind they're driving.
package arrow

import (
	"sync/atomic"

	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/internal/obsmetrics"
)

// Kind distinguishes the three arrow roles.
type Kind int

const (
	KindSource Kind = iota
	KindStage
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindStage:
		return "stage"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Status is an arrow's lifecycle state.
type Status int

const (
	Unopened Status = iota
	Running
	Paused
	Finished
)

// Result is what Execute reports back to the scheduler.
type Result int

const (
	// KeepGoing means the arrow made progress and should be rescheduled
	// immediately.
	KeepGoing Result = iota
	// ComeBackLater means the arrow found no work (empty inbox, full
	// outbox, or no reservable chunk) and the worker should yield briefly.
	ComeBackLater
	// ArrowFinished means this invocation observed the terminal condition
	// (upstream finished and drained) and the arrow has transitioned to
	// Finished.
	ArrowFinished
)

// EventSource is the narrow view of an EventPool an arrow needs: acquire
// and release, partitioned by locality domain.
type EventSource interface {
	Get(loc int) (*jevent.Event, bool)
	Put(ev *jevent.Event, loc int)
}

// Arrow is the uniform interface the scheduler and worker drive.
type Arrow interface {
	Name() string
	Kind() Kind
	IsParallel() bool
	Status() Status

	// ThreadCount returns the number of workers currently executing inside
	// this arrow.
	ThreadCount() int32
	// AcquireSlot attempts to claim a slot to execute inside this arrow,
	// honoring IsParallel: returns false if the arrow is already occupied
	// and not parallel.
	AcquireSlot() bool
	// ReleaseSlot returns the slot claimed by AcquireSlot.
	ReleaseSlot()

	// UpstreamFinished reports whether every upstream arrow has finished.
	UpstreamFinished() bool
	// SetUpstreamFinished marks all upstreams finished, called by the
	// scheduler during finished-propagation.
	SetUpstreamFinished()

	Initialize() error
	Finalize() error
	// Execute runs one invocation of this arrow's work for the given
	// locality domain.
	Execute(loc int) (Result, error)
}

// base implements the bookkeeping shared by all three concrete arrow
// kinds: thread-count/parallelism gating, upstream-finished tracking, and
// status transitions (spec §3 Arrow invariants: thread_count >= 0;
// !is_parallel => thread_count in {0,1}; Finished only when upstreams
// finished and thread_count == 0).
type base struct {
	name    string
	kind    Kind
	metrics *obsmetrics.Registry

	parallel bool

	threadCount      atomic.Int32
	upstreamFinished atomic.Bool
	status           atomic.Int32 // Status
}

func newBase(name string, kind Kind, parallel bool, metrics *obsmetrics.Registry) base {
	b := base{name: name, kind: kind, parallel: parallel, metrics: metrics}
	b.status.Store(int32(Unopened))
	return b
}

func (b *base) Name() string    { return b.name }
func (b *base) Kind() Kind      { return b.kind }
func (b *base) IsParallel() bool { return b.parallel }

func (b *base) Status() Status { return Status(b.status.Load()) }

func (b *base) ThreadCount() int32 { return b.threadCount.Load() }

func (b *base) AcquireSlot() bool {
	if !b.parallel {
		if !b.threadCount.CompareAndSwap(0, 1) {
			return false
		}
		b.status.Store(int32(Running))
		b.observeThreadCount()
		return true
	}
	b.threadCount.Add(1)
	b.status.Store(int32(Running))
	b.observeThreadCount()
	return true
}

func (b *base) ReleaseSlot() {
	n := b.threadCount.Add(-1)
	if n < 0 {
		b.threadCount.Store(0)
		n = 0
	}
	if b.upstreamFinished.Load() && n == 0 {
		b.status.Store(int32(Finished))
	}
	b.observeThreadCount()
}

func (b *base) UpstreamFinished() bool { return b.upstreamFinished.Load() }

func (b *base) SetUpstreamFinished() {
	b.upstreamFinished.Store(true)
	if b.threadCount.Load() == 0 {
		b.status.Store(int32(Finished))
	}
}

func (b *base) observeThreadCount() {
	if b.metrics == nil {
		return
	}
	b.metrics.ArrowThreadCount.WithLabelValues(b.name).Set(float64(b.threadCount.Load()))
}
