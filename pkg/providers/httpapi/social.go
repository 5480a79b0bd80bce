package httpapi

import (
	"context"
	"errors"

	"github.com/dukex/fanflow/pkg/providers"
)

// ErrMissingPostID is returned when the social API accepts a post without identifying it.
var ErrMissingPostID = errors.New("social API returned no post id")

// SocialPublisher publishes captions through a social media gateway (POST /posts).
type SocialPublisher struct {
	client *Client
}

func NewSocialPublisher(client *Client) *SocialPublisher {
	return &SocialPublisher{client: client}
}

type publishRequest struct {
	Platform string `json:"platform"`
	Caption  string `json:"caption"`
}

type publishResponse struct {
	ID string `json:"id"`
}

func (p *SocialPublisher) Publish(ctx context.Context, platform, caption string) (providers.Post, error) {
	var response publishResponse

	err := p.client.postJSON(ctx, "/posts", publishRequest{Platform: platform, Caption: caption}, &response)
	if err != nil {
		return providers.Post{}, err
	}

	if response.ID == "" {
		return providers.Post{}, ErrMissingPostID
	}

	return providers.Post{PostID: response.ID}, nil
}
