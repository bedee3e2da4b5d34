// Package controller implements the lifecycle façade described in spec
// component [Controller]: service-locator-style wiring of a topology,
// scheduler, event pool and worker set, plus scaling, drain detection,
// timeout detection, and the final report.
package controller

import (
	"strconv"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/janaframework/jana/core/arrow"
	"github.com/janaframework/jana/core/scheduler"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/core/worker"
	"github.com/janaframework/jana/internal/config"
	"github.com/janaframework/jana/internal/obslog"
	"github.com/janaframework/jana/internal/obsmetrics"
	"github.com/janaframework/jana/pkg/eventpool"
)

// Report is the final summary produced when a run completes or is
// stopped, per spec §4.H "final report".
type Report struct {
	ID             string
	Duration       time.Duration
	WorkerCount    int
	TimedOutCount  int
	EventsFinished bool
	Extended       map[string]any
}

// JSON renders the report as JSON, for callers that log or export it
// outside of the structured-logging path (e.g. writing it to a file or an
// HTTP response body).
func (r Report) JSON() ([]byte, error) {
	return gojson.Marshal(r)
}

// Controller owns the topology, scheduler, event pool, and worker set for
// one run, and drives scale/drain/timeout/report per spec §4.H.
type Controller struct {
	mu sync.Mutex

	top     *topology.Topology
	sched   *scheduler.Scheduler
	pool    *eventpool.Pool
	cfg     config.Settings
	metrics *obsmetrics.Registry

	workers      []*worker.Worker
	nextWorkerID int

	startTime      time.Time
	draining       bool
	reportLimiter  *rate.Limiter
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// New constructs a Controller ready to scale workers against top.
func New(top *topology.Topology, pool *eventpool.Pool, cfg config.Settings, metrics *obsmetrics.Registry) *Controller {
	return &Controller{
		top:           top,
		sched:         scheduler.New(top),
		pool:          pool,
		cfg:           cfg,
		metrics:       metrics,
		startTime:     time.Now(),
		reportLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		stopCh:        make(chan struct{}),
	}
}

// Scale implements spec §4.H's scale(n): grow by starting new workers
// with deterministic ids, or shrink by requesting stop on the trailing
// workers and waiting for them to drain — without deleting them, so a
// future scale-up restarts those slots under their original ids.
func (c *Controller) Scale(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := len(c.workers)
	for i := 0; i < n && i < current; i++ {
		old := c.workers[i]
		if old.State() != worker.Stopped {
			continue
		}
		w := worker.New(worker.Config{
			ID:       old.ID(),
			Location: i % maxDomains(c.pool),
			CPU:      old.ID(),
			PinToCPU: c.cfg.Affinity != config.AffinityNone,
		}, c.sched, c.metrics)
		c.workers[i] = w
		go w.Run()
	}
	if n > current {
		for i := current; i < n; i++ {
			loc := i % maxDomains(c.pool)
			w := worker.New(worker.Config{
				ID:       c.nextWorkerID,
				Location: loc,
				CPU:      c.nextWorkerID,
				PinToCPU: c.cfg.Affinity != config.AffinityNone,
			}, c.sched, c.metrics)
			c.nextWorkerID++
			c.workers = append(c.workers, w)
			go w.Run()
		}
	} else if n < current {
		toStop := c.workers[n:current]
		for _, w := range toStop {
			w.RequestStop()
		}
		for _, w := range toStop {
			<-w.Done()
		}
	}

	c.startTime = time.Now()
	if c.metrics != nil {
		for _, a := range c.top.Arrows() {
			c.metrics.ArrowThreadCount.WithLabelValues(a.Name()).Set(float64(a.ThreadCount()))
		}
	}
}

func maxDomains(pool *eventpool.Pool) int {
	if pool == nil {
		return 1
	}
	d := pool.Domains()
	if d < 1 {
		return 1
	}
	return d
}

// sourcesFinished reports whether every registered Source arrow has
// reached Finished (spec §4.H drain detection, step 1).
func (c *Controller) sourcesFinished() bool {
	for _, a := range c.top.Arrows() {
		if a.Kind() == arrow.KindSource && a.Status() != arrow.Finished {
			return false
		}
	}
	return true
}

// threshold implements spec §4.H's adaptive timeout formula: warmup
// timeout while the wall clock is still inside the warmup window sized
// by event-pool-capacity/thread-count, steady timeout afterward.
func (c *Controller) threshold() time.Duration {
	n := len(c.workers)
	if n == 0 {
		n = 1
	}
	warmupWindow := c.cfg.WarmupTimeout * time.Duration(c.cfg.EventPoolCapacity) / time.Duration(n)
	if time.Since(c.startTime) < warmupWindow {
		return c.cfg.WarmupTimeout
	}
	return c.cfg.Timeout
}

func (c *Controller) checkTimeouts() {
	c.mu.Lock()
	workers := append([]*worker.Worker(nil), c.workers...)
	threshold := c.threshold()
	c.mu.Unlock()

	now := time.Now()
	log := obslog.WithComponent("controller")
	for _, w := range workers {
		last := w.LastHeartbeatUnixNano()
		if last == 0 {
			continue
		}
		age := now.Sub(time.Unix(0, last))
		if c.metrics != nil {
			c.metrics.WorkerHeartbeatAge.WithLabelValues(workerLabel(w.ID())).Set(age.Seconds())
		}
		if age <= threshold {
			continue
		}
		w.DeclareTimeout()
		log.Error().Int("worker_id", w.ID()).Str("last_arrow", w.LastArrowName()).
			Dur("age", age).Msg("worker declared timed out")
		if c.metrics != nil {
			c.metrics.WorkerTimeouts.WithLabelValues(workerLabel(w.ID())).Inc()
		}
	}
}

// Run drives drain/timeout polling at cfg.PollInterval until the topology
// fully drains (every arrow reaches Finished) or Stop is called. It
// blocks the calling goroutine.
func (c *Controller) Run() Report {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log := obslog.WithComponent("controller")
	for {
		select {
		case <-c.stopCh:
			return c.buildReport()
		case <-ticker.C:
			if !c.draining && c.sourcesFinished() {
				c.mu.Lock()
				c.draining = true
				c.mu.Unlock()
				log.Info().Msg("all sources finished, draining queues")
			}
			c.checkTimeouts()
			if c.cfg.ExtendedReport && c.reportLimiter.Allow() {
				log.Info().Interface("report", c.buildReport()).Msg("extended report")
			}
			if c.top.AllFinished() {
				return c.buildReport()
			}
		}
	}
}

// Stop requests every worker to stop, waits for each to actually exit its
// run loop, and only then unblocks Run — so that once Stop returns (and
// once Run's subsequent return delivers the report), no worker can still be
// mid-Execute.
func (c *Controller) Stop() {
	c.mu.Lock()
	workers := append([]*worker.Worker(nil), c.workers...)
	c.mu.Unlock()
	for _, w := range workers {
		w.RequestStop()
	}
	for _, w := range workers {
		<-w.Done()
	}
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Controller) buildReport() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	timedOut := 0
	for _, w := range c.workers {
		if w.State() == worker.TimedOut {
			timedOut++
		}
	}
	r := Report{
		ID:             uuid.NewString(),
		Duration:       time.Since(c.startTime),
		WorkerCount:    len(c.workers),
		TimedOutCount:  timedOut,
		EventsFinished: c.top.AllFinished(),
	}
	if c.cfg.ExtendedReport {
		r.Extended = map[string]any{
			"draining": c.draining,
			"arrows":   len(c.top.Arrows()),
		}
	}
	return r
}

func workerLabel(id int) string {
	return strconv.Itoa(id)
}
