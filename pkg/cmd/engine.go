package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/fanflow/pkg/actions"
	"github.com/dukex/fanflow/pkg/engine"
	"github.com/dukex/fanflow/pkg/eventbus"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/router"
	"github.com/dukex/fanflow/pkg/scheduler"
	"github.com/dukex/fanflow/pkg/triggers"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the execution side of fanflow: the event router, the runner it starts runs
// on, and the pollers that resume waiting runs and fire cron schedules.
type Engine struct {
	Runner  *engine.Runner
	Router  *router.Router
	Resumer *scheduler.Resumer
	Source  *scheduler.Source
}

// EngineConfig tunes the engine. Zero values keep the package defaults.
type EngineConfig struct {
	Tracer           trace.Tracer
	Publisher        eventbus.EventPublisher
	MaxRetries       uint64
	MaxNodeVisits    int
	RunLease         time.Duration
	ResumeInterval   time.Duration
	ResumeBatch      int
	ResumeParallel   int
	ScheduleInterval time.Duration
}

// EngineFlags are the flags that fill an EngineConfig.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:    "action-retries",
			Usage:   "Retries of a failed provider call before the action fails",
			Value:   2,
			Sources: cli.EnvVars("ACTION_RETRIES"),
		},
		&cli.IntFlag{
			Name:    "max-node-visits",
			Usage:   "Node visits allowed per run step before the run fails",
			Value:   engine.DefaultMaxNodeVisits,
			Sources: cli.EnvVars("MAX_NODE_VISITS"),
		},
		&cli.DurationFlag{
			Name:    "run-lease",
			Usage:   "Time a resumed run stays claimed without a heartbeat before another worker may take it over",
			Value:   engine.DefaultLease,
			Sources: cli.EnvVars("RUN_LEASE"),
		},
		&cli.DurationFlag{
			Name:    "resume-interval",
			Usage:   "Time between sweeps for waiting runs that are due",
			Value:   scheduler.DefaultResumeInterval,
			Sources: cli.EnvVars("RESUME_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "resume-batch",
			Usage:   "Runs resumed per sweep",
			Value:   scheduler.DefaultResumeBatch,
			Sources: cli.EnvVars("RESUME_BATCH"),
		},
		&cli.IntFlag{
			Name:    "resume-parallel",
			Usage:   "Runs resumed at the same time",
			Value:   scheduler.DefaultResumeConcurrency,
			Sources: cli.EnvVars("RESUME_PARALLEL"),
		},
		&cli.DurationFlag{
			Name:    "schedule-interval",
			Usage:   "Time between polls for due cron schedules",
			Value:   scheduler.DefaultScheduleInterval,
			Sources: cli.EnvVars("SCHEDULE_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// EngineConfigFromCommand reads the EngineFlags of command.
func EngineConfigFromCommand(command *cli.Command) EngineConfig {
	return EngineConfig{
		MaxRetries:       command.Uint64("action-retries"),
		MaxNodeVisits:    command.Int("max-node-visits"),
		RunLease:         command.Duration("run-lease"),
		ResumeInterval:   command.Duration("resume-interval"),
		ResumeBatch:      command.Int("resume-batch"),
		ResumeParallel:   command.Int("resume-parallel"),
		ScheduleInterval: command.Duration("schedule-interval"),
	}
}

func NewEngine(store persistence.Persistence, set providers.Set, config EngineConfig, logger *slog.Logger) *Engine {
	dispatcher := actions.NewDispatcher(set, logger, actions.WithMaxRetries(config.MaxRetries))

	runnerOpts := []engine.Option{engine.WithMaxNodeVisits(config.MaxNodeVisits), engine.WithLease(config.RunLease)}
	if config.Tracer != nil {
		runnerOpts = append(runnerOpts, engine.WithTracer(config.Tracer))
	}

	if config.Publisher != nil {
		runnerOpts = append(runnerOpts, engine.WithObserver(eventbus.NewRunObserver(config.Publisher, logger)))
	}

	runner := engine.NewRunner(store.WorkflowRepository(), store.RunRepository(), dispatcher, logger, runnerOpts...)
	eventRouter := router.NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(logger), runner, logger)

	resumerOpts := []scheduler.ResumerOption{
		scheduler.WithResumeInterval(config.ResumeInterval),
		scheduler.WithResumeConcurrency(config.ResumeParallel),
	}
	if config.ResumeBatch > 0 {
		resumerOpts = append(resumerOpts, scheduler.WithResumeBatch(config.ResumeBatch))
	}

	return &Engine{
		Runner:  runner,
		Router:  eventRouter,
		Resumer: scheduler.NewResumer(store.RunRepository(), runner, logger, resumerOpts...),
		Source: scheduler.NewSource(store.ScheduleRepository(), eventRouter, logger,
			scheduler.WithScheduleInterval(config.ScheduleInterval)),
	}
}

// StartPollers starts resuming waiting runs and firing cron schedules.
func (e *Engine) StartPollers(ctx context.Context) {
	e.Resumer.Start(ctx)
	e.Source.Start(ctx)
}

// Stop stops the pollers and waits for the runs started or resumed in this process.
func (e *Engine) Stop(ctx context.Context) {
	e.Source.Stop(ctx)
	e.Resumer.Stop(ctx)
	e.Router.Wait()
}
