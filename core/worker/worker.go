// Package worker implements the per-thread run-loop described in spec
// component [Worker]: repeatedly pull an assignment from the scheduler,
// execute it, and track heartbeat/timeout state for the controller.
package worker

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/janaframework/jana/core/arrow"
	"github.com/janaframework/jana/internal/obslog"
	"github.com/janaframework/jana/internal/obsmetrics"
)

// State is a worker's lifecycle state.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
	TimedOut
)

// Assigner is the narrow scheduler surface a worker needs.
type Assigner interface {
	NextAssignment(prev arrow.Arrow) (arrow.Arrow, bool)
}

// Config identifies a worker's binding: which location domain it draws
// work from, the CPU id it was assigned, and whether to pin. Worker only
// records CPU; PinToCPU locks the run-loop goroutine to its OS thread and
// sets no OS CPU affinity (CPU-affinity discovery itself is an external
// collaborator).
type Config struct {
	ID         int
	Location   int
	CPU        int
	PinToCPU   bool
	MaxBackoff time.Duration
}

// Worker runs one goroutine's worth of the scheduling loop: pull an
// assignment, execute it, update heartbeat, repeat until stopped.
type Worker struct {
	cfg     Config
	sched   Assigner
	metrics *obsmetrics.Registry

	state         atomic.Int32
	lastHeartbeat atomic.Int64 // unix nanos
	lastArrow     atomic.Value // string
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New constructs a Worker bound to cfg, polling sched for assignments.
func New(cfg Config, sched Assigner, metrics *obsmetrics.Registry) *Worker {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 50 * time.Millisecond
	}
	w := &Worker{
		cfg:     cfg,
		sched:   sched,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.state.Store(int32(Running))
	w.lastHeartbeat.Store(0)
	w.lastArrow.Store("")
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// ID returns the worker's configured id.
func (w *Worker) ID() int { return w.cfg.ID }

// LastHeartbeatUnixNano returns the last time this worker completed an
// Execute call, as unix nanoseconds (0 if it has never executed one).
func (w *Worker) LastHeartbeatUnixNano() int64 { return w.lastHeartbeat.Load() }

// LastArrowName returns the name of the arrow most recently executed,
// included in diagnostic reports on timeout.
func (w *Worker) LastArrowName() string {
	if v, ok := w.lastArrow.Load().(string); ok {
		return v
	}
	return ""
}

// RequestStop transitions the worker to Stopping; the run loop exits once
// its in-flight assignment drains.
func (w *Worker) RequestStop() {
	w.state.CompareAndSwap(int32(Running), int32(Stopping))
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// DeclareTimeout flips the worker into TimedOut state. The controller may
// interpret this as non-recoverable and terminate the process with a
// diagnostic (spec §4.G).
func (w *Worker) DeclareTimeout() {
	w.state.Store(int32(TimedOut))
}

// Done returns a channel closed once the run loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.doneCh }

// Run drives the loop from spec §4.G until stopped or timed out. Intended
// to be launched as its own goroutine.
func (w *Worker) Run() {
	defer close(w.doneCh)

	if w.cfg.PinToCPU {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	log := obslog.WithWorker(w.cfg.ID)
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	var current arrow.Arrow
	for {
		if w.State() == TimedOut {
			return
		}
		select {
		case <-w.stopCh:
			w.state.CompareAndSwap(int32(Stopping), int32(Stopped))
			return
		default:
		}

		next, ok := w.sched.NextAssignment(current)
		if !ok {
			current = nil
			d, err := bo.NextBackOff()
			if err != nil || d > w.cfg.MaxBackoff {
				d = w.cfg.MaxBackoff
			}
			select {
			case <-w.stopCh:
				w.state.CompareAndSwap(int32(Stopping), int32(Stopped))
				return
			case <-time.After(d):
			}
			continue
		}
		bo.Reset()

		if _, err := next.Execute(w.cfg.Location); err != nil {
			log.Warn().Err(err).Str("arrow", next.Name()).Msg("arrow execution failed")
		}

		w.lastHeartbeat.Store(time.Now().UnixNano())
		w.lastArrow.Store(next.Name())
		if w.metrics != nil {
			w.metrics.WorkerHeartbeatAge.WithLabelValues(workerLabel(w.cfg.ID)).Set(0)
		}
		current = next

		if w.State() == Stopping {
			w.state.CompareAndSwap(int32(Stopping), int32(Stopped))
			return
		}
	}
}

func workerLabel(id int) string {
	return strconv.Itoa(id)
}
