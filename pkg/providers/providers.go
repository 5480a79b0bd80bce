// Package providers defines the narrow capability interfaces the engine calls out to for
// side effects: email, notifications, webhooks, social posts, text generation and the
// follower directory.
package providers

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when an action needs a provider that was not wired.
var ErrNotConfigured = errors.New("provider not configured")

type Delivery struct {
	Delivered bool `json:"delivered"`
}

type WebhookResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

type Post struct {
	PostID string `json:"post_id"`
}

type Generation struct {
	Text string `json:"text"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (Delivery, error)
}

// Notifier delivers push/in-app notifications. It is called once per recipient batch.
type Notifier interface {
	Notify(ctx context.Context, recipientIDs []string, title, body string) (Delivery, error)
}

type WebhookCaller interface {
	Post(ctx context.Context, url string, payload []byte) (WebhookResponse, error)
}

type SocialPublisher interface {
	Publish(ctx context.Context, platform, caption string) (Post, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error)
}

// FollowerDirectory lists the fans following an artist.
type FollowerDirectory interface {
	Followers(ctx context.Context, artistID string) ([]string, error)
}

// Set groups the providers available to the action dispatcher. Nil members make the
// matching actions fail with ErrNotConfigured.
type Set struct {
	Email     EmailSender
	Notifier  Notifier
	Webhook   WebhookCaller
	Social    SocialPublisher
	Text      TextGenerator
	Followers FollowerDirectory
}
