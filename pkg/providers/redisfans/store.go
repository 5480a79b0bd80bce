// Package redisfans keeps the follower directory in Redis sets and hands notification
// batches to the delivery workers through a Redis list.
package redisfans

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/fanflow/pkg/providers"
	redis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "fanflow"

// Notification is the message pushed for every notification batch.
type Notification struct {
	RecipientIDs []string  `json:"recipient_ids"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	QueuedAt     time.Time `json:"queued_at"`
}

type Store struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Store{client: client, prefix: prefix}
}

func (s *Store) followersKey(artistID string) string {
	return s.prefix + ":followers:" + artistID
}

// NotificationsKey is the list notification batches are pushed to.
func (s *Store) NotificationsKey() string {
	return s.prefix + ":notifications"
}

// Followers returns the follower ids of an artist in lexical order.
func (s *Store) Followers(ctx context.Context, artistID string) ([]string, error) {
	followers, err := s.client.SMembers(ctx, s.followersKey(artistID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list followers of %s: %w", artistID, err)
	}

	sort.Strings(followers)

	return followers, nil
}

// AddFollowers records fans following an artist.
func (s *Store) AddFollowers(ctx context.Context, artistID string, fanIDs ...string) error {
	if len(fanIDs) == 0 {
		return nil
	}

	members := make([]any, len(fanIDs))
	for i, id := range fanIDs {
		members[i] = id
	}

	err := s.client.SAdd(ctx, s.followersKey(artistID), members...).Err()
	if err != nil {
		return fmt.Errorf("failed to add followers of %s: %w", artistID, err)
	}

	return nil
}

// Notify queues one notification batch.
func (s *Store) Notify(ctx context.Context, recipientIDs []string, title, body string) (providers.Delivery, error) {
	payload, err := json.Marshal(Notification{
		RecipientIDs: recipientIDs,
		Title:        title,
		Body:         body,
		QueuedAt:     time.Now().UTC(),
	})
	if err != nil {
		return providers.Delivery{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = s.client.RPush(ctx, s.NotificationsKey(), payload).Err()
	if err != nil {
		return providers.Delivery{}, fmt.Errorf("failed to queue notification: %w", err)
	}

	return providers.Delivery{Delivered: true}, nil
}
