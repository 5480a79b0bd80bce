package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/fanflow/pkg/cmd"
	"github.com/dukex/fanflow/pkg/intake/redisqueue"
	"github.com/dukex/fanflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus domain events are consumed from and run events published to (gochannel, kafka)",
			Value:   "kafka",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "redis-queue",
			Usage:   "Redis list domain events are popped from; requires --redis-addr",
			Value:   redisqueue.DefaultQueue,
			Sources: cli.EnvVars("REDIS_QUEUE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}

	command := &cli.Command{
		Name:                  "fanflow-worker",
		Usage:                 "Route domain events to workflows and drive waiting runs and schedules",
		EnableShellCompletion: true,
		Flags:                 slices.Concat(flags, cmd.EngineFlags(), cmd.ProviderFlags(), cmd.RedisFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("fanflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing fanflow worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "fanflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			redisClient, err := cmd.NewRedisClient(ctx, command)
			if err != nil {
				return err
			}

			if redisClient != nil {
				defer func() { _ = redisClient.Close() }()
			}

			providerSet, err := cmd.NewProviders(command, redisClient, logger)
			if err != nil {
				return err
			}

			config := cmd.EngineConfigFromCommand(command)
			config.Tracer = cmd.NewTracer(ctx, logger, command.Bool("tracing"), "fanflow-worker")
			config.Publisher = eventBus

			engine := cmd.NewEngine(persistence, providerSet, config, logger)

			var intake *redisqueue.Consumer

			if redisClient != nil {
				intake, err = redisqueue.NewConsumer(redisClient, command.String("redis-queue"), engine.Router, logger)
				if err != nil {
					return err
				}
			}

			worker := NewWorker(workerID, engine, eventBus, intake, logger)
			if err := worker.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			worker.Stop(context.WithoutCancel(ctx))

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
