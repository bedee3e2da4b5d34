// Package topology holds the directed acyclic graph of arrows a
// Controller drives: source arrows (in-degree 0), sink arrows (out-degree
// 0), and the upstream/downstream adjacency used for finished-propagation
// (spec component [Topology]).
package topology

import (
	"sync"

	"github.com/janaframework/jana/core/arrow"
)

// Topology owns the registered arrows and their upstream/downstream
// adjacency. Finished propagation is monotonic: once PropagateFinished
// marks an arrow finished, it never un-finishes (spec §3 Topology
// invariant).
type Topology struct {
	mu          sync.RWMutex
	arrows      []arrow.Arrow
	downstreams map[arrow.Arrow][]arrow.Arrow
}

// New constructs an empty Topology.
func New() *Topology {
	return &Topology{
		downstreams: make(map[arrow.Arrow][]arrow.Arrow),
	}
}

// Register adds an arrow to the topology's scheduling list.
func (t *Topology) Register(a arrow.Arrow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arrows = append(t.arrows, a)
}

// Connect records that downstream consumes from upstream, so that when
// upstream finishes, downstream's UpstreamFinished bit can be set.
func (t *Topology) Connect(upstream, downstream arrow.Arrow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downstreams[upstream] = append(t.downstreams[upstream], downstream)
}

// Arrows returns a snapshot of every registered arrow, in registration
// order (the order the scheduler's round-robin cursor walks).
func (t *Topology) Arrows() []arrow.Arrow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]arrow.Arrow, len(t.arrows))
	copy(out, t.arrows)
	return out
}

// PropagateFinished marks every direct downstream consumer of a as
// upstream-finished. Called by the scheduler after observing a arrive at
// ThreadCount() == 0 with its own upstreams finished (spec §4.F step 1).
func (t *Topology) PropagateFinished(a arrow.Arrow) {
	t.mu.RLock()
	downs := t.downstreams[a]
	t.mu.RUnlock()
	for _, d := range downs {
		d.SetUpstreamFinished()
	}
}

// AllFinished reports whether every registered arrow has reached the
// Finished status, i.e. the topology has fully drained.
func (t *Topology) AllFinished() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range t.arrows {
		if a.Status() != arrow.Finished {
			return false
		}
	}
	return true
}
