// Package jfactory implements the per-event, on-demand typed result cache
// (spec components [D] FactorySet and [E] Factory): a lazy producer with a
// one-shot Init latch, run-boundary tracking, and first-writer-wins
// memoization keyed by (type, tag).
package jfactory

import (
	"reflect"
	"sync"

	"github.com/janaframework/jana/errs"
)

// EventContext is the narrow view of an Event a Factory needs during its
// lifecycle callbacks, kept separate from core/jevent.Event to avoid an
// import cycle (jevent depends on jfactory, not the reverse).
type EventContext interface {
	RunNumber() int32
	EventNumberValue() uint64
	RecordCall(caller, callee string)
}

// Factory is the polymorphic, type-erased interface FactorySet stores.
// Concrete producers are instances of the generic FactoryT[T]; callers
// retrieve typed results via FactoryT[T].Results or, more commonly, via
// core/jevent.Get[T].
type Factory interface {
	ObjectName() string
	Tag() string
	Status() Status
	PluginName() string
	SetPluginName(name string)
	Persistent() bool
	NotObjectOwner() bool
	ConvertsTo() []reflect.Type

	// GetOrCreate drives the Init-once/run-boundary/Process state machine
	// documented in spec §4.D and returns once results are ready (or an
	// error if a user callback failed).
	GetOrCreate(ev EventContext) error

	// Insert injects results directly, skipping Process for this event.
	Insert(results []any)

	// ClearData resets per-event state for pool reuse (spec §3, §4.D).
	ClearData()
}

// Option configures a Base at construction.
type Option func(*Base)

// WithTag sets the factory's tag discriminator.
func WithTag(tag string) Option { return func(b *Base) { b.tag = tag } }

// WithPlugin sets the owning plugin name.
func WithPlugin(plugin string) Option { return func(b *Base) { b.pluginName = plugin } }

// WithPersistent marks the factory PERSISTENT: ClearData becomes a no-op.
func WithPersistent() Option { return func(b *Base) { b.persistent = true } }

// WithNotObjectOwner marks the factory NOT_OBJECT_OWNER: ClearData does not
// attempt to release owned result objects.
func WithNotObjectOwner() Option { return func(b *Base) { b.notObjectOwner = true } }

// WithConvertsTo registers the base types this factory's results are
// convertible to, for the cross-plugin GetAs(base, tag) lookup path
// (spec §9 "Dynamic type dispatch").
func WithConvertsTo(types ...reflect.Type) Option {
	return func(b *Base) { b.convertsTo = append(b.convertsTo, types...) }
}

// Base implements the lifecycle state machine shared by every FactoryT[T]
// instance: the one-shot Init latch, run-boundary bookkeeping, and status
// transitions from spec §4.D's table. It is embedded by FactoryT[T], never
// used standalone.
type Base struct {
	objectName     string
	tag            string
	pluginName     string
	persistent     bool
	notObjectOwner bool
	convertsTo     []reflect.Type

	mu          sync.Mutex
	status      Status
	previousRun int32
	processing  bool
	initOnce    sync.Once
	initErr     error
}

func newBase(objectName string, opts ...Option) Base {
	b := Base{
		objectName:  objectName,
		status:      Uninitialized,
		previousRun: sentinelNoRun,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// ObjectName returns the factory's declared object type name.
func (b *Base) ObjectName() string { return b.objectName }

// Tag returns the factory's tag discriminator.
func (b *Base) Tag() string { return b.tag }

// Status returns the current lifecycle status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// PluginName returns the owning plugin name.
func (b *Base) PluginName() string { return b.pluginName }

// SetPluginName sets the owning plugin name (used when a plugin loader
// attaches metadata after construction).
func (b *Base) SetPluginName(name string) { b.pluginName = name }

// Persistent reports whether ClearData is a no-op for this factory.
func (b *Base) Persistent() bool { return b.persistent }

// NotObjectOwner reports whether ClearData should skip releasing results.
func (b *Base) NotObjectOwner() bool { return b.notObjectOwner }

// ConvertsTo returns the base types registered via WithConvertsTo.
func (b *Base) ConvertsTo() []reflect.Type { return b.convertsTo }

func (b *Base) enrich(err error) error {
	if err == nil {
		return nil
	}
	return errs.New(errs.CodeComponentInitFailure,
		errs.WithComponent(b.objectName),
		errs.WithPlugin(b.pluginName),
		errs.WithCause(err),
	)
}
