package httpapi

import (
	"context"

	"github.com/dukex/fanflow/pkg/providers"
)

// EmailSender sends transactional email through a JSON mail API (POST /send).
type EmailSender struct {
	client *Client
	from   string
}

func NewEmailSender(client *Client, from string) *EmailSender {
	return &EmailSender{client: client, from: from}
}

type sendEmailRequest struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *EmailSender) Send(ctx context.Context, to, subject, body string) (providers.Delivery, error) {
	err := s.client.postJSON(ctx, "/send", sendEmailRequest{
		From:    s.from,
		To:      to,
		Subject: subject,
		Body:    body,
	}, nil)
	if err != nil {
		return providers.Delivery{}, err
	}

	return providers.Delivery{Delivered: true}, nil
}
