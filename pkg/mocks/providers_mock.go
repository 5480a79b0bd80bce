package mocks

import (
	"context"

	"github.com/dukex/fanflow/pkg/providers"
	"github.com/stretchr/testify/mock"
)

// MockEmailSender is a mock implementation of providers.EmailSender interface.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to, subject, body string) (providers.Delivery, error) {
	args := m.Called(ctx, to, subject, body)

	return args.Get(0).(providers.Delivery), args.Error(1)
}

// MockNotifier is a mock implementation of providers.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, recipientIDs []string, title, body string) (providers.Delivery, error) {
	args := m.Called(ctx, recipientIDs, title, body)

	return args.Get(0).(providers.Delivery), args.Error(1)
}

// MockWebhookCaller is a mock implementation of providers.WebhookCaller interface.
type MockWebhookCaller struct {
	mock.Mock
}

func (m *MockWebhookCaller) Post(ctx context.Context, url string, payload []byte) (providers.WebhookResponse, error) {
	args := m.Called(ctx, url, payload)

	return args.Get(0).(providers.WebhookResponse), args.Error(1)
}

// MockSocialPublisher is a mock implementation of providers.SocialPublisher interface.
type MockSocialPublisher struct {
	mock.Mock
}

func (m *MockSocialPublisher) Publish(ctx context.Context, platform, caption string) (providers.Post, error) {
	args := m.Called(ctx, platform, caption)

	return args.Get(0).(providers.Post), args.Error(1)
}

// MockTextGenerator is a mock implementation of providers.TextGenerator interface.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (providers.Generation, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)

	return args.Get(0).(providers.Generation), args.Error(1)
}

// MockFollowerDirectory is a mock implementation of providers.FollowerDirectory interface.
type MockFollowerDirectory struct {
	mock.Mock
}

func (m *MockFollowerDirectory) Followers(ctx context.Context, artistID string) ([]string, error) {
	args := m.Called(ctx, artistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}
