// Command jana-run launches a minimal engine instance wiring a toy event
// source and processor together, useful as a smoke test and as a worked
// example of the wiring a real plugin bundle would do.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/janaframework/jana/core/arrow"
	"github.com/janaframework/jana/core/controller"
	"github.com/janaframework/jana/core/engine"
	"github.com/janaframework/jana/core/jevent"
	"github.com/janaframework/jana/core/jfactory"
	"github.com/janaframework/jana/core/topology"
	"github.com/janaframework/jana/internal/config"
	"github.com/janaframework/jana/internal/obslog"
	"github.com/janaframework/jana/internal/obsmetrics"
	"github.com/janaframework/jana/pkg/eventpool"
	"github.com/janaframework/jana/pkg/mailbox"
	"go.opentelemetry.io/otel"
)

const defaultConfigPath = "config/jana.yaml"

func main() {
	cfgPath := flag.String("config", "", fmt.Sprintf("path to engine configuration file (default: %s)", defaultConfigPath))
	eventCount := flag.Int("events", 100, "number of synthetic events the demo source emits")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(resolveConfigPath(*cfgPath))
	if err != nil {
		obslog.Logger.Fatal().Err(err).Msg("load configuration")
	}

	meter := otel.GetMeterProvider().Meter("github.com/janaframework/jana")
	metrics := obsmetrics.NewRegistry(nil, meter)
	top := topology.New()

	mid := mailbox.New[*jevent.Event](cfg.EventPoolCapacity, cfg.LocalityDomainSize)
	pool := eventpool.New(cfg.EventPoolCapacity, cfg.LocalityDomainSize, cfg.DefaultTags, metrics)

	src := &demoSource{chunkSize: 4, remaining: int64(*eventCount)}
	sourceArrow := arrow.NewSourceArrow(src, pool, mid, metrics)

	proc := &demoProcessor{}
	sinkArrow := arrow.NewSinkArrow("demo-sink", []arrow.Processor{proc}, mid, pool, false, 16, metrics)

	top.Register(sourceArrow)
	top.Register(sinkArrow)
	top.Connect(sourceArrow, sinkArrow)

	log := obslog.WithComponent("jana-run")

	if cfg.Engine == config.EngineDebug {
		log.Info().Msg("running single-threaded debug engine")
		if err := engine.New(top, 0).Run(); err != nil {
			log.Fatal().Err(err).Msg("debug engine failed")
		}
		log.Info().Int64("processed", proc.processed.Load()).Msg("done")
		return
	}

	ctrl := controller.New(top, pool, cfg, metrics)
	ctrl.Scale(cfg.NThreads)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		ctrl.Stop()
	}()

	report := ctrl.Run()
	log.Info().
		Str("report_id", report.ID).
		Dur("duration", report.Duration).
		Int("workers", report.WorkerCount).
		Int("timed_out", report.TimedOutCount).
		Bool("finished", report.EventsFinished).
		Int64("processed", proc.processed.Load()).
		Msg("run complete")

	if cfg.ExtendedReport {
		if body, err := report.JSON(); err == nil {
			fmt.Fprintln(os.Stdout, string(body))
		}
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return defaultConfigPath
}

// demoSource emits remaining synthetic events, chunkSize at a time.
type demoSource struct {
	chunkSize int
	remaining int64
}

func (s *demoSource) Name() string                   { return "demo-source" }
func (s *demoSource) ChunkSize() int                  { return s.chunkSize }
func (s *demoSource) RunNumber() int32                { return 1 }
func (s *demoSource) Factories() *jfactory.FactorySet { return nil }

func (s *demoSource) Next(ev *jevent.Event) (arrow.SourceStatus, error) {
	if atomic.AddInt64(&s.remaining, -1) < 0 {
		return arrow.SourceFinished, nil
	}
	return arrow.SourceSuccess, nil
}

// demoProcessor counts every event it sees.
type demoProcessor struct {
	processed atomic.Int64
	lastRun   int32
}

func (p *demoProcessor) Name() string     { return "demo-processor" }
func (p *demoProcessor) ThreadSafe() bool { return true }

func (p *demoProcessor) BeginRun(ev *jevent.Event) error {
	p.lastRun = ev.RunNumber()
	return nil
}

func (p *demoProcessor) EndRun() error { return nil }

func (p *demoProcessor) Process(ev *jevent.Event) error {
	p.processed.Add(1)
	return nil
}
