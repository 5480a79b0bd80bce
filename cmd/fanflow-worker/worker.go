package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/fanflow/pkg/cmd"
	"github.com/dukex/fanflow/pkg/eventbus"
	"github.com/dukex/fanflow/pkg/events"
	"github.com/dukex/fanflow/pkg/intake/redisqueue"
	"github.com/dukex/fanflow/pkg/router"
)

// Worker routes domain events from the event bus and the Redis intake list, resumes
// waiting runs and fires cron schedules.
type Worker struct {
	id       string
	logger   *slog.Logger
	engine   *cmd.Engine
	eventBus eventbus.EventSubscriber
	intake   *redisqueue.Consumer
}

func NewWorker(
	id string,
	engine *cmd.Engine,
	eventBus eventbus.EventSubscriber,
	intake *redisqueue.Consumer,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.With("module", "fanflow-worker", "worker_id", id),
		engine:   engine,
		eventBus: eventBus,
		intake:   intake,
	}
}

// Start subscribes and starts every poller. It returns once everything is running.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	if w.eventBus != nil {
		if err := w.eventBus.Handle(events.DomainEventReceived, w.handleDomainEvent); err != nil {
			return err
		}

		if err := w.eventBus.Subscribe(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

			return err
		}
	}

	if w.intake != nil {
		w.intake.Start(ctx)
	}

	w.engine.StartPollers(ctx)

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Stop stops consuming and waits for the runs in flight.
func (w *Worker) Stop(ctx context.Context) {
	w.logger.InfoContext(ctx, "Shutting down worker")

	if w.intake != nil {
		w.intake.Stop(ctx)
	}

	w.engine.Stop(ctx)
}

// handleDomainEvent routes one event from the bus. An invalid event is acknowledged and
// dropped; any other failure is returned so the bus redelivers it.
func (w *Worker) handleDomainEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DomainEvent")

		return nil
	}

	runIDs, err := w.engine.Router.FireWorkflowEvent(ctx, domainEvent.Event)
	if err != nil {
		if errors.Is(err, router.ErrInvalidEvent) {
			w.logger.WarnContext(ctx, "Dropping invalid event", "event_id", domainEvent.ID, "error", err)

			return nil
		}

		return err
	}

	w.logger.InfoContext(ctx, "Event routed",
		"event_id", domainEvent.ID,
		"event_type", domainEvent.Event.EventType,
		"occurred_for", domainEvent.Event.OccurredFor,
		"runs", len(runIDs),
	)

	return nil
}
