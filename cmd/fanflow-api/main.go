package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/fanflow/pkg/cmd"
	"github.com/dukex/fanflow/pkg/eventbus"
	"github.com/dukex/fanflow/pkg/log"
	"github.com/dukex/fanflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("fanflow-api")

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (memory://, file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus run lifecycle events are published to (gochannel, kafka); none when empty",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.BoolFlag{
			Name:    "pollers",
			Usage:   "Resume waiting runs and fire cron schedules in this process",
			Value:   true,
			Sources: cli.EnvVars("RUN_POLLERS"),
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
		Name:                  "fanflow-api",
		Usage:                 "Create and manage workflows, and route the events they react to",
		EnableShellCompletion: true,
		Flags:                 slices.Concat(flags, cmd.EngineFlags(), cmd.ProviderFlags(), cmd.RedisFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing fanflow API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
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
			config.Tracer = cmd.NewTracer(ctx, logger, command.Bool("tracing"), "fanflow-api")

			if provider := command.String("event-bus"); provider != "" {
				var bus eventbus.EventBus

				bus, err = cmd.NewEventBus(provider, "fanflow-api", logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := bus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				config.Publisher = bus
			}

			engine := cmd.NewEngine(persistence, providerSet, config, logger)
			defer engine.Stop(context.WithoutCancel(ctx))

			if command.Bool("pollers") {
				engine.StartPollers(ctx)
			}

			api := NewAPI(logger, persistence, registry.NewDefault(), engine.Router, engine.Runner)

			return api.Serve(ctx, command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("fanflow-api stopped", "error", err)
		os.Exit(1)
	}
}
