package redisqueue_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/intake/redisqueue"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/router"
	"github.com/dukex/fanflow/pkg/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFirer struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (f *fakeFirer) FireWorkflowEvent(_ context.Context, event models.Event) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.events = append(f.events, event)

	return []string{"run-1"}, nil
}

func (f *fakeFirer) fired() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.Event(nil), f.events...)
}

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

	client, err := redisqueue.NewClient(ctx, endpoint, "", "0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())

		cancel()
	})

	return client, ctx
}

func TestNewConsumer_RequiresQueue(t *testing.T) {
	_, err := redisqueue.NewConsumer(nil, "", &fakeFirer{}, testLogger())
	assert.ErrorIs(t, err, redisqueue.ErrQueueRequired)
}

func TestNewClient_InvalidDB(t *testing.T) {
	_, err := redisqueue.NewClient(context.Background(), "localhost:6379", "", "zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid db value")
}

func TestDecode(t *testing.T) {
	event, err := redisqueue.Decode(`{"event_type":"new_sale","occurred_for":"7","data":{"amount":12.5}}`)
	require.NoError(t, err)
	assert.Equal(t, models.SubtypeNewSale, event.EventType)
	assert.Equal(t, "7", event.OccurredFor)
	assert.InDelta(t, 12.5, event.Data["amount"], 0.001)

	_, err = redisqueue.Decode("not json")
	assert.Error(t, err)
}

func TestConsumer_Poll(t *testing.T) {
	client, ctx := setupRedis(t)

	t.Run("routes queued events in order", func(t *testing.T) {
		firer := &fakeFirer{}
		consumer, err := redisqueue.NewConsumer(client, "events:order", firer, testLogger())
		require.NoError(t, err)

		require.NoError(t, redisqueue.Push(ctx, client, "events:order", testutil.FollowerEvent("7")))
		require.NoError(t, redisqueue.Push(ctx, client, "events:order", models.Event{EventType: models.SubtypeNewSale, OccurredFor: "7"}))

		for range 2 {
			popped, err := consumer.Poll(ctx)
			require.NoError(t, err)
			assert.True(t, popped)
		}

		fired := firer.fired()
		require.Len(t, fired, 2)
		assert.Equal(t, models.SubtypeNewFollower, fired[0].EventType)
		assert.Equal(t, models.SubtypeNewSale, fired[1].EventType)

		popped, err := consumer.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, popped)
	})

	t.Run("drops malformed and invalid events", func(t *testing.T) {
		firer := &fakeFirer{err: fmt.Errorf("%w: missing event_type", router.ErrInvalidEvent)}
		consumer, err := redisqueue.NewConsumer(client, "events:invalid", firer, testLogger())
		require.NoError(t, err)

		require.NoError(t, client.RPush(ctx, "events:invalid", "not json").Err())
		require.NoError(t, redisqueue.Push(ctx, client, "events:invalid", models.Event{OccurredFor: "7"}))

		for range 2 {
			_, err := consumer.Poll(ctx)
			require.NoError(t, err)
		}

		length, err := client.LLen(ctx, "events:invalid").Result()
		require.NoError(t, err)
		assert.Zero(t, length)
	})

	t.Run("requeues events the router could not store", func(t *testing.T) {
		firer := &fakeFirer{err: errors.New("database unavailable")}
		consumer, err := redisqueue.NewConsumer(client, "events:retry", firer, testLogger())
		require.NoError(t, err)

		require.NoError(t, redisqueue.Push(ctx, client, "events:retry", testutil.FollowerEvent("7")))

		_, err = consumer.Poll(ctx)
		require.Error(t, err)

		length, err := client.LLen(ctx, "events:retry").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), length)
	})
}

func TestConsumer_StartStop(t *testing.T) {
	client, ctx := setupRedis(t)

	firer := &fakeFirer{}
	consumer, err := redisqueue.NewConsumer(client, "events:loop", firer, testLogger())
	require.NoError(t, err)

	consumer.Start(ctx)
	consumer.Start(ctx)

	require.NoError(t, redisqueue.Push(ctx, client, "events:loop", testutil.FollowerEvent("7")))

	assert.Eventually(t, func() bool { return len(firer.fired()) == 1 }, 5*time.Second, 50*time.Millisecond)

	consumer.Stop(ctx)
	consumer.Stop(ctx)
}
