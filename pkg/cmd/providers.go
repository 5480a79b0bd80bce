package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/fanflow/pkg/intake/redisqueue"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/providers/httpapi"
	"github.com/dukex/fanflow/pkg/providers/logging"
	"github.com/dukex/fanflow/pkg/providers/redisfans"
	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

// ProviderFlags are the flags every binary that executes actions accepts.
func ProviderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "email-api-url",
			Usage:   "Base URL of the email delivery API; emails are only logged when empty",
			Sources: cli.EnvVars("EMAIL_API_URL"),
		},
		&cli.StringFlag{
			Name:    "email-api-key",
			Usage:   "API key of the email delivery API",
			Sources: cli.EnvVars("EMAIL_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "email-from",
			Usage:   "Sender address of outgoing emails",
			Value:   "no-reply@fanflow.local",
			Sources: cli.EnvVars("EMAIL_FROM"),
		},
		&cli.StringFlag{
			Name:    "social-api-url",
			Usage:   "Base URL of the social publishing API; posts are only logged when empty",
			Sources: cli.EnvVars("SOCIAL_API_URL"),
		},
		&cli.StringFlag{
			Name:    "social-api-key",
			Usage:   "API key of the social publishing API",
			Sources: cli.EnvVars("SOCIAL_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-api-url",
			Usage:   "Base URL of the text generation API; generation is only logged when empty",
			Sources: cli.EnvVars("AI_API_URL"),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "API key of the text generation API",
			Sources: cli.EnvVars("AI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Usage:   "Model used for generated content",
			Sources: cli.EnvVars("AI_MODEL"),
		},
		&cli.DurationFlag{
			Name:    "webhook-timeout",
			Usage:   "Timeout of call_webhook requests",
			Value:   10 * time.Second,
			Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
		},
	}
}

// RedisFlags configure the Redis server holding the follower directory, notification
// queue and event intake list.
func RedisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address; followers and notifications are only logged when empty",
			Sources: cli.EnvVars("REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			Sources: cli.EnvVars("REDIS_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Value:   "0",
			Sources: cli.EnvVars("REDIS_DB"),
		},
		&cli.StringFlag{
			Name:    "redis-prefix",
			Usage:   "Prefix of every Redis key",
			Value:   redisfans.DefaultPrefix,
			Sources: cli.EnvVars("REDIS_PREFIX"),
		},
	}
}

// NewRedisClient connects to the configured Redis server, or returns nil when none is
// configured.
func NewRedisClient(ctx context.Context, command *cli.Command) (*redis.Client, error) {
	addr := command.String("redis-addr")
	if addr == "" {
		return nil, nil
	}

	return redisqueue.NewClient(ctx, addr, command.String("redis-password"), command.String("redis-db"))
}

// NewProviders builds the provider set from the flags. Every provider without an
// endpoint falls back to logging what it would have done.
func NewProviders(command *cli.Command, client *redis.Client, logger *slog.Logger) (providers.Set, error) {
	set := logging.New(logger).Set()
	set.Webhook = httpapi.NewWebhookCaller(command.Duration("webhook-timeout"), logger)

	if url := command.String("email-api-url"); url != "" {
		apiClient, err := httpapi.NewClient(url, command.String("email-api-key"), 0, logger)
		if err != nil {
			return providers.Set{}, fmt.Errorf("email provider: %w", err)
		}

		set.Email = httpapi.NewEmailSender(apiClient, command.String("email-from"))
	}

	if url := command.String("social-api-url"); url != "" {
		apiClient, err := httpapi.NewClient(url, command.String("social-api-key"), 0, logger)
		if err != nil {
			return providers.Set{}, fmt.Errorf("social provider: %w", err)
		}

		set.Social = httpapi.NewSocialPublisher(apiClient)
	}

	if url := command.String("ai-api-url"); url != "" {
		apiClient, err := httpapi.NewClient(url, command.String("ai-api-key"), 0, logger)
		if err != nil {
			return providers.Set{}, fmt.Errorf("text provider: %w", err)
		}

		set.Text = httpapi.NewTextGenerator(apiClient, command.String("ai-model"))
	}

	if client != nil {
		store := redisfans.New(client, command.String("redis-prefix"))
		set.Notifier = store
		set.Followers = store
	}

	return set, nil
}
