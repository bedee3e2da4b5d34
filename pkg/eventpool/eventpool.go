// Package eventpool implements the fixed-capacity, locality-partitioned
// Event pool (spec component [EventPool]): the engine's primary in-flight
// memory bound.
package eventpool

import (
	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/internal/obsmetrics"
)

// Pool is a fixed-capacity set of *jevent.Event, split into sub-pools by
// locality domain so a worker's Get prefers objects already warm in its
// own domain before stealing from a neighbor. Get/Put are non-blocking:
// Get returns (nil, false) immediately when the pool is exhausted, and
// the caller (a Source arrow) is expected to back off and retry rather
// than block, since a blocked Source would stall the scheduler's
// round-robin (spec §4.B).
type Pool struct {
	domains []chan *jevent.Event
	metrics *obsmetrics.Registry
}

// New constructs a Pool of domains sub-pools, each pre-filled with
// capacity/domains (at least one) freshly constructed Events sharing
// defaultTags; any remainder of capacity/domains is not allocated.
func New(capacity, domains int, defaultTags map[string]string, metrics *obsmetrics.Registry) *Pool {
	if domains < 1 {
		domains = 1
	}
	per := capacity / domains
	if per < 1 {
		per = 1
	}

	p := &Pool{
		domains: make([]chan *jevent.Event, domains),
		metrics: metrics,
	}
	for d := 0; d < domains; d++ {
		ch := make(chan *jevent.Event, per)
		for i := 0; i < per; i++ {
			ch <- jevent.New(defaultTags)
		}
		p.domains[d] = ch
	}
	if metrics != nil {
		metrics.EventPoolAvailable.Set(float64(per * domains))
	}
	return p
}

func (p *Pool) domainIndex(loc int) int {
	n := len(p.domains)
	loc %= n
	if loc < 0 {
		loc += n
	}
	return loc
}

// Get removes and returns an Event, preferring loc's local sub-pool then
// stealing round-robin from remote domains. Returns (nil, false) if every
// sub-pool is currently empty; the caller must back off.
func (p *Pool) Get(loc int) (*jevent.Event, bool) {
	start := p.domainIndex(loc)
	n := len(p.domains)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		select {
		case ev := <-p.domains[idx]:
			if p.metrics != nil {
				p.metrics.EventPoolAvailable.Dec()
			}
			return ev, true
		default:
		}
	}
	return nil, false
}

// Put resets ev and returns it to loc's local sub-pool or, when that one is
// full (events stolen from remote sub-pools were returned to it), to the
// next sub-pool with room.
func (p *Pool) Put(ev *jevent.Event, loc int) {
	if ev == nil {
		return
	}
	ev.Reset()
	start := p.domainIndex(loc)
	n := len(p.domains)
	for i := 0; i < n; i++ {
		select {
		case p.domains[(start+i)%n] <- ev:
			if p.metrics != nil {
				p.metrics.EventPoolAvailable.Inc()
			}
			return
		default:
		}
	}
	// Every sub-pool at capacity (shouldn't happen if Put/Get are
	// balanced); drop rather than block the returning worker.
}

// Available returns the total count of Events currently resting in the
// pool, summed across every locality domain.
func (p *Pool) Available() int {
	total := 0
	for _, ch := range p.domains {
		total += len(ch)
	}
	return total
}

// Domains returns the number of locality sub-pools.
func (p *Pool) Domains() int { return len(p.domains) }
