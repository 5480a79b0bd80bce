package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/fanflow/pkg/events"
)

// RunObserver publishes run lifecycle events, keyed by workflow so a partitioned broker
// keeps the events of one workflow in order. Publish failures are logged, never returned.
type RunObserver struct {
	publisher EventPublisher
	logger    *slog.Logger
}

func NewRunObserver(publisher EventPublisher, logger *slog.Logger) *RunObserver {
	return &RunObserver{publisher: publisher, logger: logger.With("module", "run_observer")}
}

func (o *RunObserver) Notify(ctx context.Context, event events.RunLifecycle) {
	err := o.publisher.Publish(ctx, event.WorkflowID, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish run event",
			"type", event.Type, "run_id", event.RunID, "error", err)
	}
}
