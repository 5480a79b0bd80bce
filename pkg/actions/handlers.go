package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/providers"
)

const (
	// NotifyBatchSize is the number of recipients sent per notification call.
	NotifyBatchSize = 100

	DefaultSystemPrompt = "You are a creative assistant helping music artists craft engaging content for their fans."

	// AIContextKey is the context namespace receiving generated text, ai.<outputKey>.
	AIContextKey = "ai"
)

func (d *Dispatcher) registerDefaults() {
	d.Register(models.SubtypeSendEmail, d.sendEmail, false)
	d.Register(models.SubtypeCallWebhook, d.callWebhook, false)
	d.Register(models.SubtypeSendNotification, d.sendNotification, false)
	d.Register(models.SubtypeNotifyFans, d.notifyFans, false)
	d.Register(models.SubtypeGenerateAIContent, d.generateAIContent, true)
	d.Register(models.SubtypeWait, d.wait, false)
	d.Register(models.SubtypePostInstagram, d.socialPost("instagram"), false)
	d.Register(models.SubtypePostTwitter, d.socialPost("twitter"), false)
}

func (d *Dispatcher) sendEmail(ctx context.Context, req Request) Result {
	to := strings.TrimSpace(req.Config["to"])
	if to == "" {
		return Result{Outcome: models.Outcome{"sent": false, "reason": "no_recipient"}}
	}

	err := d.call(ctx, func(ctx context.Context) error {
		if d.providers.Email == nil {
			return notConfigured("email sender")
		}

		_, err := d.providers.Email.Send(ctx, to, req.Config["subject"], req.Config["body"])

		return err
	})
	if err != nil {
		return Result{Outcome: models.FailedOutcome(err)}
	}

	return Result{Outcome: models.Outcome{"sent": true, "to": to}}
}

func (d *Dispatcher) callWebhook(ctx context.Context, req Request) Result {
	url := strings.TrimSpace(req.Config["url"])
	if url == "" {
		return Result{Outcome: models.Outcome{"called": false, "reason": "no_url"}}
	}

	payload := []byte(req.Config["payload"])
	if strings.TrimSpace(req.Config["payload"]) == "" {
		encoded, err := json.Marshal(req.Context)
		if err != nil {
			return Result{Outcome: models.FailedOutcome(fmt.Errorf("failed to encode payload: %w", err))}
		}

		payload = encoded
	}

	var response providers.WebhookResponse

	err := d.call(ctx, func(ctx context.Context) error {
		if d.providers.Webhook == nil {
			return notConfigured("webhook caller")
		}

		var err error

		response, err = d.providers.Webhook.Post(ctx, url, payload)

		return err
	})
	if err != nil {
		return Result{Outcome: models.FailedOutcome(err)}
	}

	return Result{Outcome: models.Outcome{"called": true, "url": url, "status": response.Status}}
}

// sendNotification notifies the configured recipients, or the owning artist when none
// are configured.
func (d *Dispatcher) sendNotification(ctx context.Context, req Request) Result {
	recipients := splitList(req.Config["recipients"])
	if len(recipients) == 0 && req.OwnerID != "" {
		recipients = []string{req.OwnerID}
	}

	if len(recipients) == 0 {
		return Result{Outcome: models.Outcome{"notified": 0, "reason": "no_recipient"}}
	}

	return d.notifyInBatches(ctx, recipients, req.Config["title"], req.Config["body"])
}

func (d *Dispatcher) notifyFans(ctx context.Context, req Request) Result {
	var followers []string

	err := d.call(ctx, func(ctx context.Context) error {
		if d.providers.Followers == nil {
			return notConfigured("follower directory")
		}

		var err error

		followers, err = d.providers.Followers.Followers(ctx, req.OwnerID)

		return err
	})
	if err != nil {
		return Result{Outcome: models.FailedOutcome(err)}
	}

	return d.notifyInBatches(ctx, followers, req.Config["title"], req.Config["body"])
}

// notifyInBatches sends one notifier call per NotifyBatchSize recipients. A failed batch
// does not prevent the following ones.
func (d *Dispatcher) notifyInBatches(ctx context.Context, recipients []string, title, body string) Result {
	batches, notified := 0, 0

	var lastErr error

	for start := 0; start < len(recipients); start += NotifyBatchSize {
		end := min(start+NotifyBatchSize, len(recipients))
		batch := recipients[start:end]
		batches++

		err := d.call(ctx, func(ctx context.Context) error {
			if d.providers.Notifier == nil {
				return notConfigured("notifier")
			}

			_, err := d.providers.Notifier.Notify(ctx, batch, title, body)

			return err
		})
		if err != nil {
			lastErr = err

			continue
		}

		notified += len(batch)
	}

	outcome := models.Outcome{"notified": notified, "batches": batches}

	if lastErr != nil {
		outcome["success"] = false
		outcome["error"] = lastErr.Error()
	}

	return Result{Outcome: outcome}
}

func (d *Dispatcher) generateAIContent(ctx context.Context, req Request) Result {
	systemPrompt := strings.TrimSpace(req.Config["systemPrompt"])
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	var generation providers.Generation

	err := d.call(ctx, func(ctx context.Context) error {
		if d.providers.Text == nil {
			return notConfigured("text generator")
		}

		var err error

		generation, err = d.providers.Text.Generate(ctx, systemPrompt, req.Config["prompt"])

		return err
	})
	if err != nil {
		return Result{Outcome: models.FailedOutcome(err)}
	}

	key := strings.TrimSpace(req.Config["outputKey"])
	if key == "" {
		key = req.Node.ID
	}

	return Result{
		Outcome: models.Outcome{"generated": true, "key": AIContextKey + "." + key, "text": generation.Text},
		ContextAdditions: map[string]any{
			AIContextKey: map[string]any{key: generation.Text},
		},
	}
}

// wait parks the branch for minutes*60000 + hours*3600000 milliseconds.
func (d *Dispatcher) wait(_ context.Context, req Request) Result {
	delay := WaitDelay(req.Config)
	resumeAt := req.Now.Add(delay)

	return Result{
		Outcome: models.Outcome{
			"waiting":  true,
			"delayMs":  delay.Milliseconds(),
			"resumeAt": resumeAt.Format(time.RFC3339),
		},
		Suspend: true,
		Delay:   delay,
	}
}

// WaitDelay computes the delay of a wait node. Malformed or negative values count as 0,
// and the delay never exceeds models.MaxWaitDelay.
func WaitDelay(config map[string]string) time.Duration {
	ms := models.WaitMilliseconds(config)
	if ms >= float64(models.MaxWaitDelay.Milliseconds()) {
		return models.MaxWaitDelay
	}

	return time.Duration(math.Round(ms)) * time.Millisecond
}

func (d *Dispatcher) socialPost(platform string) Handler {
	return func(ctx context.Context, req Request) Result {
		caption := req.Config["caption"]
		if strings.TrimSpace(caption) == "" {
			caption = req.Config["body"]
		}

		if strings.TrimSpace(caption) == "" {
			caption = req.Config["text"]
		}

		var post providers.Post

		err := d.call(ctx, func(ctx context.Context) error {
			if d.providers.Social == nil {
				return notConfigured("social publisher")
			}

			var err error

			post, err = d.providers.Social.Publish(ctx, platform, caption)

			return err
		})
		if err != nil {
			return Result{Outcome: models.FailedOutcome(err)}
		}

		return Result{Outcome: models.Outcome{"posted": true, "platform": platform, "postId": post.PostID}}
	}
}

