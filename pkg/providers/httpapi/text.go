package httpapi

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/fanflow/pkg/providers"
)

// ErrEmptyCompletion is returned when the model answers without any choice.
var ErrEmptyCompletion = errors.New("text generation returned no choices")

// TextGenerator calls a chat completions endpoint (POST /chat/completions).
type TextGenerator struct {
	client *Client
	model  string
}

func NewTextGenerator(client *Client, model string) *TextGenerator {
	return &TextGenerator{client: client, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *TextGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (providers.Generation, error) {
	var response chatResponse

	err := g.client.postJSON(ctx, "/chat/completions", chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}, &response)
	if err != nil {
		return providers.Generation{}, err
	}

	if len(response.Choices) == 0 {
		return providers.Generation{}, ErrEmptyCompletion
	}

	return providers.Generation{Text: strings.TrimSpace(response.Choices[0].Message.Content)}, nil
}
