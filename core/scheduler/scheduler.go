// Package scheduler implements the single-mutex round-robin arrow
// assignment described in spec component [Scheduler]: one ordered list of
// arrows and a circular cursor, nothing fancier.
package scheduler

import (
	"sync"

	"github.com/janaframework/jana/core/arrow"
	"github.com/janaframework/jana/core/topology"
)

// Scheduler hands out arrow assignments to idle workers in round-robin
// order, guarded by a single mutex (spec §4.F).
type Scheduler struct {
	mu      sync.Mutex
	top     *topology.Topology
	nextIdx int
}

// New constructs a Scheduler driving top's registered arrows.
func New(top *topology.Topology) *Scheduler {
	return &Scheduler{top: top}
}

// NextAssignment implements spec §4.F's next_assignment:
//  1. If prev is non-nil, release its slot; if that drops it to
//     ThreadCount() == 0 with upstreams finished, propagate finished to
//     its downstream consumers.
//  2. Starting at the cursor, walk the arrow list circularly and return
//     the first arrow that isn't upstream-finished and can accept a new
//     slot (parallel, or currently idle).
//  3. On success, the cursor advances past the returned arrow.
//  4. If no candidate is found after a full lap, returns (nil, false) —
//     the worker should back off briefly.
func (s *Scheduler) NextAssignment(prev arrow.Arrow) (arrow.Arrow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev != nil {
		prev.ReleaseSlot()
		if prev.Status() == arrow.Finished {
			s.top.PropagateFinished(prev)
		}
	}

	arrows := s.top.Arrows()
	n := len(arrows)
	if n == 0 {
		return nil, false
	}
	if s.nextIdx >= n {
		s.nextIdx = 0
	}

	for i := 0; i < n; i++ {
		idx := (s.nextIdx + i) % n
		candidate := arrows[idx]
		if candidate.UpstreamFinished() {
			continue
		}
		if !candidate.AcquireSlot() {
			continue
		}
		s.nextIdx = (idx + 1) % n
		return candidate, true
	}
	return nil, false
}
