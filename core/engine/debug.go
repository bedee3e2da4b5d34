// Package engine implements the single-threaded debug Controller
// described in spec §9 "Dual engines": every arrow runs on the calling
// goroutine, in registration order, with no worker pool — useful for
// deterministic bring-up and for reproducing a bug without scheduler
// nondeterminism in the mix.
package engine

import (
	"time"

	"github.com/janaframework/jana/core/arrow"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/internal/obslog"
)

// DebugEngine drives a topology's arrows sequentially on one goroutine,
// round-robin, until every arrow reports Finished.
type DebugEngine struct {
	top          *topology.Topology
	idleSleep    time.Duration
	maxIdleSpins int
}

// New constructs a DebugEngine over top. idleSleep is how long to pause
// once more than 1000 consecutive full passes have made no progress; a zero
// value uses 1ms.
func New(top *topology.Topology, idleSleep time.Duration) *DebugEngine {
	if idleSleep <= 0 {
		idleSleep = time.Millisecond
	}
	return &DebugEngine{top: top, idleSleep: idleSleep, maxIdleSpins: 1000}
}

// Run executes every arrow in round-robin order on the calling goroutine
// until topology.AllFinished() is true.
func (e *DebugEngine) Run() error {
	log := obslog.WithComponent("debug-engine")
	idleSpins := 0
	for {
		arrows := e.top.Arrows()
		if len(arrows) == 0 {
			return nil
		}
		progressed := false
		for _, a := range arrows {
			if a.UpstreamFinished() && a.Status() == arrow.Finished {
				continue
			}
			if !a.AcquireSlot() {
				continue
			}
			res, err := a.Execute(0)
			a.ReleaseSlot()
			if res != arrow.ComeBackLater {
				progressed = true
			}
			if res == arrow.ArrowFinished {
				e.top.PropagateFinished(a)
			}
			if err != nil {
				log.Error().Err(err).Str("arrow", a.Name()).Msg("arrow execution failed")
			}
		}

		if e.top.AllFinished() {
			return nil
		}
		if !progressed {
			idleSpins++
			if idleSpins > e.maxIdleSpins {
				time.Sleep(e.idleSleep)
				idleSpins = 0
			}
		} else {
			idleSpins = 0
		}
	}
}
