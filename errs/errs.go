// Package errs provides the structured error taxonomy used across the JANA
// engine, modeled as an envelope type rather than a family of sentinel errors
// so that plugin/component context can be attached uniformly.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies an error category from the engine's error taxonomy.
type Code string

const (
	// CodeEndOfInput marks normal source exhaustion; propagated as a
	// finished-signal downstream, never surfaced to the user.
	CodeEndOfInput Code = "end_of_input"
	// CodeRetryableBackpressure marks a TryAgain from mailbox reserve or
	// pool exhaustion; callers loop via the scheduler.
	CodeRetryableBackpressure Code = "retryable_backpressure"
	// CodeComponentInitFailure marks an Init/BeginRun failure: fatal for
	// that component, reported, and aborts the run.
	CodeComponentInitFailure Code = "component_init_failure"
	// CodePerEventFailure marks a Process failure, enriched with the
	// factory call stack that led into it.
	CodePerEventFailure Code = "per_event_failure"
	// CodeTimeoutDetected marks a watchdog exceedance; terminal.
	CodeTimeoutDetected Code = "timeout_detected"
	// CodeFactoryNotFound marks a lookup miss for (type, tag).
	CodeFactoryNotFound Code = "factory_not_found"
	// CodeTopologyMisconfigured marks a source-without-sink (or vice
	// versa) detected during initialize; fatal before any workers start.
	CodeTopologyMisconfigured Code = "topology_misconfigured"
)

// E captures structured error information produced across the engine.
type E struct {
	Code      Code
	Component string
	Plugin    string
	Message   string
	CallStack []string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given code.
func New(code Code, opts ...Option) *E {
	e := &E{Code: code} //nolint:exhaustruct
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithComponent attaches the component name (factory/arrow/processor) that
// raised the error.
func WithComponent(component string) Option {
	trimmed := strings.TrimSpace(component)
	return func(e *E) { e.Component = trimmed }
}

// WithPlugin attaches the plugin name owning the failing component.
func WithPlugin(plugin string) Option {
	trimmed := strings.TrimSpace(plugin)
	return func(e *E) { e.Plugin = trimmed }
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithCallStack attaches the factory call stack active when the error
// occurred, most-recent caller last.
func WithCallStack(stack []string) Option {
	return func(e *E) {
		if len(stack) == 0 {
			return
		}
		e.CallStack = append([]string(nil), stack...)
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string
	parts = append(parts, "code="+string(e.Code))
	if e.Component != "" {
		parts = append(parts, "component="+e.Component)
	}
	if e.Plugin != "" {
		parts = append(parts, "plugin="+e.Plugin)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.CallStack) > 0 {
		parts = append(parts, "call_stack="+strconv.Quote(strings.Join(e.CallStack, "->")))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *E) Unwrap() error { return e.cause }

// Is reports whether target shares this error's Code, so callers can write
// errors.Is(err, errs.New(errs.CodeFactoryNotFound)).
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
