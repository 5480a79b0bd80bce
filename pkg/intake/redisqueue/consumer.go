// Package redisqueue feeds domain events pushed to a Redis list into the event router.
// Producers RPUSH JSON encoded events; the consumer pops them with BLPOP.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/router"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultQueue = "fanflow:events"

	popTimeout   = 1 * time.Second
	errorBackoff = 1 * time.Second
)

var ErrQueueRequired = errors.New("queue name is required")

// EventFirer starts the runs an event triggers.
type EventFirer interface {
	FireWorkflowEvent(ctx context.Context, event models.Event) ([]string, error)
}

type Consumer struct {
	client redis.UniversalClient
	queue  string
	firer  EventFirer
	logger *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	started bool
	wg      sync.WaitGroup
}

func NewConsumer(client redis.UniversalClient, queue string, firer EventFirer, logger *slog.Logger) (*Consumer, error) {
	if queue == "" {
		return nil, ErrQueueRequired
	}

	return &Consumer{
		client: client,
		queue:  queue,
		firer:  firer,
		logger: logger.With("module", "redis_intake", "queue", queue),
	}, nil
}

// NewClient connects to the Redis server at addr and checks it answers.
func NewClient(ctx context.Context, addr, password, db string) (*redis.Client, error) {
	database := 0

	if db != "" {
		parsed, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid db value: %w", err)
		}

		database = parsed
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.stopCh = make(chan struct{})
	c.started = true

	c.wg.Add(1)

	go c.consume(ctx, c.stopCh)
}

// Stop waits for the message in hand to be routed.
func (c *Consumer) Stop(ctx context.Context) {
	c.mu.Lock()

	if !c.started {
		c.mu.Unlock()

		return
	}

	close(c.stopCh)
	c.started = false
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.InfoContext(ctx, "Queue consumer stopped")
}

func (c *Consumer) consume(ctx context.Context, stopCh chan struct{}) {
	defer c.wg.Done()

	c.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if _, err := c.Poll(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}

				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

// Poll pops at most one event and routes it. It reports whether a message was popped.
// Malformed or invalid events are dropped; an event the router could not store is put
// back at the tail of the queue.
func (c *Consumer) Poll(ctx context.Context) (bool, error) {
	result, err := c.client.BLPop(ctx, popTimeout, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return false, nil
	}

	message := result[1]

	event, err := Decode(message)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping malformed event", "error", err)

		return true, nil
	}

	runIDs, err := c.firer.FireWorkflowEvent(ctx, event)
	if err != nil {
		if errors.Is(err, router.ErrInvalidEvent) {
			c.logger.WarnContext(ctx, "Dropping invalid event", "event_type", event.EventType, "error", err)

			return true, nil
		}

		if pushErr := c.client.RPush(context.WithoutCancel(ctx), c.queue, message).Err(); pushErr != nil {
			return true, errors.Join(err, fmt.Errorf("failed to requeue event: %w", pushErr))
		}

		return true, fmt.Errorf("failed to route event: %w", err)
	}

	c.logger.InfoContext(ctx, "Event routed",
		"event_type", event.EventType,
		"occurred_for", event.OccurredFor,
		"runs", len(runIDs),
	)

	return true, nil
}

// Decode parses a queued event.
func Decode(message string) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal([]byte(message), &event); err != nil {
		return models.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}

	return event, nil
}

// Push queues an event, as event sources do.
func Push(ctx context.Context, client redis.UniversalClient, queue string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue event: %w", err)
	}

	return nil
}
