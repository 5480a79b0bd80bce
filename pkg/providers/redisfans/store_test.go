package redisfans_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/providers/redisfans"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (*redis.Client, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})

	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())

		cancel()
	})

	return client, ctx
}

func TestStore_Followers(t *testing.T) {
	client, ctx := setupRedis(t)
	store := redisfans.New(client, "test")

	followers, err := store.Followers(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, followers)

	require.NoError(t, store.AddFollowers(ctx, "7", "fan-b", "fan-a", "fan-b"))
	require.NoError(t, store.AddFollowers(ctx, "8", "fan-c"))
	require.NoError(t, store.AddFollowers(ctx, "8"))

	followers, err = store.Followers(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"fan-a", "fan-b"}, followers)
}

func TestStore_Notify(t *testing.T) {
	client, ctx := setupRedis(t)
	store := redisfans.New(client, "")

	delivery, err := store.Notify(ctx, []string{"fan-a", "fan-b"}, "New single", "Out now")
	require.NoError(t, err)
	assert.True(t, delivery.Delivered)

	raw, err := client.LPop(ctx, store.NotificationsKey()).Result()
	require.NoError(t, err)

	var notification redisfans.Notification

	require.NoError(t, json.Unmarshal([]byte(raw), &notification))
	assert.Equal(t, []string{"fan-a", "fan-b"}, notification.RecipientIDs)
	assert.Equal(t, "New single", notification.Title)
	assert.Equal(t, "fanflow:notifications", store.NotificationsKey())
}
