// Package logging provides providers that only log what they would have done. They back
// local development when no real endpoint is configured.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dukex/fanflow/pkg/providers"
)

type Provider struct {
	logger *slog.Logger
	posts  atomic.Int64
}

func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger.With("module", "logging_provider")}
}

// Set returns a provider set whose members all log. The follower directory is empty.
func (p *Provider) Set() providers.Set {
	return providers.Set{
		Email:     p,
		Notifier:  p,
		Webhook:   p,
		Social:    p,
		Text:      p,
		Followers: p,
	}
}

func (p *Provider) Send(ctx context.Context, to, subject, _ string) (providers.Delivery, error) {
	p.logger.InfoContext(ctx, "Email", "to", to, "subject", subject)

	return providers.Delivery{Delivered: true}, nil
}

func (p *Provider) Notify(ctx context.Context, recipientIDs []string, title, _ string) (providers.Delivery, error) {
	p.logger.InfoContext(ctx, "Notification", "recipients", len(recipientIDs), "title", title)

	return providers.Delivery{Delivered: true}, nil
}

func (p *Provider) Post(ctx context.Context, url string, payload []byte) (providers.WebhookResponse, error) {
	p.logger.InfoContext(ctx, "Webhook", "url", url, "bytes", len(payload))

	return providers.WebhookResponse{Status: 200}, nil
}

func (p *Provider) Publish(ctx context.Context, platform, caption string) (providers.Post, error) {
	id := p.posts.Add(1)
	p.logger.InfoContext(ctx, "Social post", "platform", platform, "caption", caption)

	return providers.Post{PostID: fmt.Sprintf("%s-log-%d", platform, id)}, nil
}

func (p *Provider) Generate(ctx context.Context, _, userPrompt string) (providers.Generation, error) {
	p.logger.InfoContext(ctx, "Text generation", "prompt", userPrompt)

	return providers.Generation{Text: userPrompt}, nil
}

func (p *Provider) Followers(ctx context.Context, artistID string) ([]string, error) {
	p.logger.DebugContext(ctx, "Followers lookup", "artist_id", artistID)

	return nil, nil
}
