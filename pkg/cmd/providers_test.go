package cmd

import (
	"context"
	"testing"

	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/providers/httpapi"
	"github.com/dukex/fanflow/pkg/providers/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func providersFromArgs(t *testing.T, args ...string) providers.Set {
	t.Helper()

	var set providers.Set

	command := &cli.Command{
		Name:  "test",
		Flags: append(ProviderFlags(), RedisFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			client, err := NewRedisClient(ctx, command)
			if err != nil {
				return err
			}

			set, err = NewProviders(command, client, testLogger())

			return err
		},
	}

	require.NoError(t, command.Run(t.Context(), append([]string{"test"}, args...)))

	return set
}

func TestNewProviders_LoggingFallback(t *testing.T) {
	set := providersFromArgs(t)

	assert.IsType(t, &logging.Provider{}, set.Email)
	assert.IsType(t, &logging.Provider{}, set.Social)
	assert.IsType(t, &logging.Provider{}, set.Text)
	assert.IsType(t, &logging.Provider{}, set.Notifier)
	assert.IsType(t, &logging.Provider{}, set.Followers)
	assert.IsType(t, &httpapi.WebhookCaller{}, set.Webhook)
}

func TestNewProviders_HTTPAPIs(t *testing.T) {
	set := providersFromArgs(t,
		"--email-api-url", "https://mail.example.com",
		"--social-api-url", "https://social.example.com",
		"--ai-api-url", "https://ai.example.com",
		"--ai-model", "small",
	)

	assert.IsType(t, &httpapi.EmailSender{}, set.Email)
	assert.IsType(t, &httpapi.SocialPublisher{}, set.Social)
	assert.IsType(t, &httpapi.TextGenerator{}, set.Text)
	assert.IsType(t, &logging.Provider{}, set.Notifier)
}
