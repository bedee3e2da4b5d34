// Package obsmetrics exposes the prometheus collectors the engine updates at
// arrow, worker, and mailbox granularity, modeled on
// coachpo/meltica/core/dispatcher.FanoutMetrics.
package obsmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
)

// Registry groups every collector the engine touches, registered against a
// single prometheus.Registerer so a Controller can expose one /metrics
// surface per process. Event throughput is additionally mirrored onto an
// otel/metric counter so the engine can be embedded in a host process that
// exports via OpenTelemetry instead of (or alongside) a Prometheus scrape
// endpoint.
type Registry struct {
	ArrowExecutions  *prometheus.CounterVec
	ArrowActiveTime  *prometheus.HistogramVec
	ArrowThreadCount *prometheus.GaugeVec

	WorkerHeartbeatAge *prometheus.GaugeVec
	WorkerTimeouts     *prometheus.CounterVec

	// MailboxDepth and MailboxCongested are registered, but no engine
	// component updates them.
	MailboxDepth     *prometheus.GaugeVec
	MailboxCongested *prometheus.CounterVec

	EventPoolAvailable prometheus.Gauge
	EventsProcessed    prometheus.Counter

	otelEventsProcessed metric.Int64Counter
}

// NewRegistry constructs and registers every collector against reg. When reg
// is nil, prometheus.DefaultRegisterer is used, matching
// dispatcher.NewFanoutMetrics's fallback. meter may be nil, in which case the
// otel mirror counter is skipped.
func NewRegistry(reg prometheus.Registerer, meter metric.Meter) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		ArrowExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jana",
				Subsystem: "arrow",
				Name:      "executions_total",
				Help:      "Number of times an arrow's execute() was invoked.",
			},
			[]string{"arrow", "kind"},
		),
		ArrowActiveTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jana",
				Subsystem: "arrow",
				Name:      "active_seconds",
				Help:      "Time spent inside a single arrow execute() invocation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"arrow", "kind"},
		),
		ArrowThreadCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jana",
				Subsystem: "arrow",
				Name:      "thread_count",
				Help:      "Current number of workers executing inside an arrow.",
			},
			[]string{"arrow"},
		),
		WorkerHeartbeatAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jana",
				Subsystem: "worker",
				Name:      "heartbeat_age_seconds",
				Help:      "Seconds since the worker's last heartbeat.",
			},
			[]string{"worker"},
		),
		WorkerTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jana",
				Subsystem: "worker",
				Name:      "timeouts_total",
				Help:      "Number of times a worker was declared timed out.",
			},
			[]string{"worker"},
		),
		MailboxDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jana",
				Subsystem: "mailbox",
				Name:      "depth",
				Help:      "Number of items currently queued in a mailbox.",
			},
			[]string{"arrow"},
		),
		MailboxCongested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jana",
				Subsystem: "mailbox",
				Name:      "congested_total",
				Help:      "Number of times a reserve() call returned fewer items than requested.",
			},
			[]string{"arrow"},
		),
		EventPoolAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jana",
				Subsystem: "eventpool",
				Name:      "available",
				Help:      "Number of Event objects currently available in the pool.",
			},
		),
		EventsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jana",
				Subsystem: "engine",
				Name:      "events_processed_total",
				Help:      "Number of events that completed a full sink pass.",
			},
		),
	}
	reg.MustRegister(
		r.ArrowExecutions, r.ArrowActiveTime, r.ArrowThreadCount,
		r.WorkerHeartbeatAge, r.WorkerTimeouts,
		r.MailboxDepth, r.MailboxCongested,
		r.EventPoolAvailable, r.EventsProcessed,
	)

	if meter != nil {
		if c, err := meter.Int64Counter(
			"jana.engine.events_processed",
			metric.WithDescription("Number of events that completed a full sink pass."),
			metric.WithUnit("{event}"),
		); err == nil {
			r.otelEventsProcessed = c
		}
	}
	return r
}

// ObserveArrowExecution records one execute() invocation's duration.
func (r *Registry) ObserveArrowExecution(arrow, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.ArrowExecutions.WithLabelValues(arrow, kind).Inc()
	r.ArrowActiveTime.WithLabelValues(arrow, kind).Observe(d.Seconds())
}

// ObserveEventProcessed records one event finishing a sink pass, mirroring
// the count onto both the Prometheus counter and the otel meter counter
// (when one was supplied to NewRegistry).
func (r *Registry) ObserveEventProcessed(ctx context.Context) {
	if r == nil {
		return
	}
	r.EventsProcessed.Inc()
	if r.otelEventsProcessed != nil {
		r.otelEventsProcessed.Add(ctx, 1)
	}
}
