package jfactory

import (
	"reflect"

	"github.com/janaframework/jana/errs"
)

// FactoryT is the concrete, typed Factory implementation. Callers construct
// one per (result type T, tag) and register it into a FactorySet; the
// lifecycle hooks are supplied as function fields, mirroring the
// function-field composition idiom used throughout the retrieval pack
// (e.g. dispatcher.DeliveryFunc, async.Task) instead of requiring a
// bespoke interface implementation per factory.
type FactoryT[T any] struct {
	Base

	// InitFunc runs exactly once across this instance's lifetime.
	InitFunc func() error
	// ChangeRunFunc runs whenever the run number differs from the
	// previously observed one (including the very first event).
	ChangeRunFunc func(ev EventContext) error
	// BeginRunFunc runs immediately after ChangeRunFunc on a run-boundary
	// crossing.
	BeginRunFunc func(ev EventContext) error
	// EndRunFunc runs before ChangeRunFunc/BeginRunFunc when crossing out
	// of a previously active run.
	EndRunFunc func() error
	// ProcessFunc produces this event's results. Runs at most once per
	// event.
	ProcessFunc func(ev EventContext) ([]T, error)

	results []T
}

// NewFactoryT constructs a FactoryT[T] with the given object name and
// options, ready for ProcessFunc/InitFunc/etc. to be assigned.
func NewFactoryT[T any](objectName string, opts ...Option) *FactoryT[T] {
	f := &FactoryT[T]{Base: newBase(objectName, opts...)} //nolint:exhaustruct
	return f
}

// Results returns the typed results produced by the most recent Process (or
// Insert) call.
func (f *FactoryT[T]) Results() []T { return f.results }

// Insert injects results directly, transitioning status to Inserted and
// skipping Process for the remainder of this event.
func (f *FactoryT[T]) Insert(results []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	typed := make([]T, 0, len(results))
	for _, r := range results {
		if v, ok := r.(T); ok {
			typed = append(typed, v)
		}
	}
	f.results = typed
	f.status = Inserted
}

// InsertTyped injects already-typed results directly (the generic
// counterpart to Insert, used by callers that already hold []T).
func (f *FactoryT[T]) InsertTyped(results []T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
	f.status = Inserted
}

// ClearData resets per-event state: deletes owned results (unless
// NOT_OBJECT_OWNER) and resets status to Unprocessed, unless the factory is
// PERSISTENT in which case this is a no-op (spec §4.D).
func (f *FactoryT[T]) ClearData() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistent {
		return
	}
	if !f.notObjectOwner {
		f.results = nil
	}
	f.status = Unprocessed
}

// GetOrCreate drives the state machine from spec §4.D: Init-once, then
// run-boundary transitions (EndRun/ChangeRun/BeginRun as needed), then
// Process, memoized per event. Safe for concurrent callers across distinct
// FactoryT instances; a single instance is only ever touched by the one
// worker currently owning its Event (spec's FactorySet exclusivity
// invariant), except for the Init latch which may race across instances
// sharing process-wide state. Only the status/run-number bookkeeping is
// held under f.mu; the user callbacks (ChangeRun/BeginRun/EndRun/Process)
// run outside the critical section, per spec §5 (the lock wraps state
// transitions only, never a user callback).
func (f *FactoryT[T]) GetOrCreate(ev EventContext) error {
	f.initOnce.Do(func() {
		if f.InitFunc != nil {
			if err := f.InitFunc(); err != nil {
				f.initErr = f.enrich(err)
			}
		}
	})
	if f.initErr != nil {
		return f.initErr
	}

	f.mu.Lock()
	if f.status == Uninitialized {
		f.status = Unprocessed
	}
	switch f.status {
	case Processed, Inserted:
		f.mu.Unlock()
		return nil
	case Unprocessed:
		if f.processing {
			// Another caller is already driving this instance through
			// Process; the exclusivity invariant means this shouldn't
			// happen under normal use, so just defer to it rather than
			// double-run the callbacks.
			f.mu.Unlock()
			return nil
		}
		f.processing = true
		run := ev.RunNumber()
		wasActive := f.previousRun != sentinelNoRun
		crossed := !wasActive || f.previousRun != run
		f.previousRun = run
		f.mu.Unlock()

		if crossed {
			if err := f.crossRunBoundary(ev, wasActive); err != nil {
				f.mu.Lock()
				f.processing = false
				f.mu.Unlock()
				return err
			}
		}

		var results []T
		if f.ProcessFunc != nil {
			var err error
			results, err = f.ProcessFunc(ev)
			if err != nil {
				outerErr := errs.New(errs.CodePerEventFailure,
					errs.WithComponent(f.objectName),
					errs.WithPlugin(f.pluginName),
					errs.WithCause(err),
				)
				f.mu.Lock()
				f.processing = false
				f.mu.Unlock()
				return outerErr
			}
		}

		f.mu.Lock()
		f.results = results
		f.status = Processed
		f.processing = false
		f.mu.Unlock()
		return nil
	default:
		f.mu.Unlock()
		return nil
	}
}

func (f *FactoryT[T]) crossRunBoundary(ev EventContext, wasActive bool) error {
	if wasActive && f.EndRunFunc != nil {
		if err := f.EndRunFunc(); err != nil {
			return f.enrich(err)
		}
	}
	if f.ChangeRunFunc != nil {
		if err := f.ChangeRunFunc(ev); err != nil {
			return f.enrich(err)
		}
	}
	if f.BeginRunFunc != nil {
		if err := f.BeginRunFunc(ev); err != nil {
			return f.enrich(err)
		}
	}
	return nil
}

// TypeOf returns the reflect.Type used as FactorySet's primary map key for
// FactoryT[T].
func TypeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}
