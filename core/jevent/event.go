// Package jevent implements the Event type (spec component [Event]): the
// per-event state container that flows through arrows, carrying a
// FactorySet cache, run/event numbers, and an optional call-graph trace.
package jevent

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/janaframework/jana/core/jfactory"
	"github.com/janaframework/jana/errs"
)

// Source is the minimal view of the arrow that last populated an Event,
// kept as a weak back-reference rather than an owning pointer so Events
// never keep their originating Source arrow alive past its own lifetime.
type Source interface {
	Name() string
}

// Event is acquired from an EventPool by a Source arrow, flows through the
// topology, and is returned to the pool once the last reference drops.
// Exactly one worker touches an Event at a time; factories are reset on
// release, not destroyed, so the FactorySet survives across acquisitions.
type Event struct {
	mu sync.Mutex

	eventNumber uint64
	runNumber   int32
	sourceRef   Source
	factories   *jfactory.FactorySet
	sequential  bool

	recordCallGraph bool
	callGraph       []callEdge
}

type callEdge struct {
	caller string
	callee string
}

// New constructs an Event with its own FactorySet, ready for pooling.
// defaultTags seeds the FactorySet's DEFTAG overrides (spec §6).
func New(defaultTags map[string]string) *Event {
	return &Event{
		factories: jfactory.NewFactorySet(defaultTags),
	}
}

// RunNumber implements jfactory.EventContext.
func (e *Event) RunNumber() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runNumber
}

// EventNumberValue implements jfactory.EventContext.
func (e *Event) EventNumberValue() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eventNumber
}

// RecordCall implements jfactory.EventContext, appending a caller->callee
// edge to the call graph when tracing is enabled (spec §9 RECORD_CALL_STACK).
func (e *Event) RecordCall(caller, callee string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recordCallGraph {
		return
	}
	e.callGraph = append(e.callGraph, callEdge{caller: caller, callee: callee})
}

// CallGraph returns a snapshot of recorded caller->callee edges, formatted
// as "caller->callee" strings, for inclusion in a per-event failure report.
func (e *Event) CallGraph() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.callGraph))
	for _, c := range e.callGraph {
		out = append(out, fmt.Sprintf("%s->%s", c.caller, c.callee))
	}
	return out
}

// SetRecordCallGraph toggles call-graph tracing for this Event instance.
func (e *Event) SetRecordCallGraph(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordCallGraph = enabled
}

// EventNumber returns the event's sequence number.
func (e *Event) EventNumber() uint64 { return e.EventNumberValue() }

// SetEventNumber sets the event's sequence number. Called only by the
// owning Source arrow while repopulating a pooled Event.
func (e *Event) SetEventNumber(n uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventNumber = n
}

// SetRunNumber sets the run number. Immutable once set by the source for
// the remainder of the event's journey through the topology.
func (e *Event) SetRunNumber(n int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runNumber = n
}

// Sequential reports whether this event must be routed only through
// sequential (non-parallel) arrows.
func (e *Event) Sequential() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequential
}

// SetSequential sets the sequential-routing hint.
func (e *Event) SetSequential(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sequential = v
}

// SourceRef returns the weak back-reference to the arrow that populated
// this event, or nil if unset.
func (e *Event) SourceRef() Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourceRef
}

// SetSourceRef installs the weak back-reference to the owning Source arrow.
func (e *Event) SetSourceRef(s Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceRef = s
}

// Factories returns the event's FactorySet, exposed so a Source arrow can
// Merge its own generator-specific factories on top of a base set.
func (e *Event) Factories() *jfactory.FactorySet { return e.factories }

// Reset clears per-event state for pool reuse: event/run numbers, the
// call graph and source reference are cleared, and every registered
// factory's ClearData is invoked — but the factories themselves, and their
// registrations, survive (spec §3: "Factories inside are reset on release,
// not destroyed").
func (e *Event) Reset() {
	e.mu.Lock()
	e.eventNumber = 0
	e.runNumber = 0
	e.sourceRef = nil
	e.sequential = false
	e.callGraph = nil
	factories := e.factories
	e.mu.Unlock()

	if factories != nil {
		factories.ClearAll()
	}
}

// Get retrieves the lazily-produced results of type T under tag from ev's
// FactorySet, implementing the lookup policy from spec §4.C: primary
// (type, tag) key, then name-based fallback, then FactoryNotFound.
func Get[T any](ev *Event, tag string) ([]T, error) {
	typ := jfactory.TypeOf[T]()
	factories := ev.Factories()

	f, ok := factories.GetFactory(typ, tag)
	if !ok {
		name := typ.Name()
		f, ok = factories.GetFactoryByName(name, tag)
		if !ok {
			return nil, errs.New(errs.CodeFactoryNotFound,
				errs.WithComponent(name),
				errs.WithMessage("no factory registered for tag "+tag),
			)
		}
	}

	if err := f.GetOrCreate(ev); err != nil {
		return nil, err
	}

	typed, ok := f.(interface{ Results() []T })
	if !ok {
		return nil, errs.New(errs.CodeFactoryNotFound,
			errs.WithComponent(f.ObjectName()),
			errs.WithMessage("registered factory does not produce type "+reflect.TypeOf((*T)(nil)).Elem().String()),
		)
	}
	return typed.Results(), nil
}
