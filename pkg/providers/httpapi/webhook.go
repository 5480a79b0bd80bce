package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/fanflow/pkg/providers"
)

// ErrServerError is returned when a webhook target answers with a 5xx status.
var ErrServerError = errors.New("server error during webhook call")

// WebhookCaller POSTs payloads to arbitrary author-supplied URLs.
type WebhookCaller struct {
	client *Client
}

// NewWebhookCaller creates a caller without a base URL or credentials.
func NewWebhookCaller(timeout time.Duration, logger *slog.Logger) *WebhookCaller {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &WebhookCaller{client: &Client{http: &http.Client{Timeout: timeout}, logger: logger}}
}

// Post returns the response of any status below 500. Server errors are returned as
// errors so that callers may retry them.
func (w *WebhookCaller) Post(ctx context.Context, url string, payload []byte) (providers.WebhookResponse, error) {
	status, body, err := w.client.do(ctx, url, payload)
	if err != nil {
		return providers.WebhookResponse{}, err
	}

	response := providers.WebhookResponse{Status: status, Body: truncate(body, 4096)}

	if status >= http.StatusInternalServerError {
		return response, fmt.Errorf("%w: status %d", ErrServerError, status)
	}

	return response, nil
}
