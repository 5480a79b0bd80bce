package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/router"
)

const DefaultScheduleInterval = time.Minute

// EventFirer routes a domain event to the workflows it triggers.
type EventFirer interface {
	FireWorkflowEvent(ctx context.Context, event models.Event) ([]string, error)
}

// Source polls the schedule store for due schedules and fires one schedule event per due
// schedule, whatever its cron expression.
type Source struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	firer     EventFirer
	now       func() time.Time
	poller    *poller
}

type SourceOption func(*Source)

func WithScheduleInterval(interval time.Duration) SourceOption {
	return func(s *Source) {
		if interval > 0 {
			s.poller.interval = interval
		}
	}
}

func WithSourceClock(now func() time.Time) SourceOption {
	return func(s *Source) {
		s.now = now
	}
}

func NewSource(schedules persistence.ScheduleRepository, firer EventFirer, logger *slog.Logger, opts ...SourceOption) *Source {
	s := &Source{
		logger:    logger.With("module", "schedule_source"),
		schedules: schedules,
		firer:     firer,
		now:       func() time.Time { return time.Now().UTC() },
	}

	s.poller = &poller{logger: s.logger, interval: DefaultScheduleInterval, tick: func(ctx context.Context) {
		_, _ = s.Poll(ctx)
	}}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Source) Start(ctx context.Context) {
	s.poller.start(ctx)
}

func (s *Source) Stop(ctx context.Context) {
	s.poller.stop(ctx)
}

// Poll fires every due schedule and moves it to its next cron tick. A schedule whose
// event could not be fired is left due and retried on the next poll.
func (s *Source) Poll(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.schedules.Due(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get due schedules", "error", err)

		return 0, err
	}

	fired := 0

	for _, schedule := range due {
		logger := s.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

		runIDs, err := s.firer.FireWorkflowEvent(ctx, ScheduleEvent(schedule))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to fire schedule event", "error", err)

			continue
		}

		fired++

		if err := schedule.Advance(now); err != nil {
			logger.ErrorContext(ctx, "Failed to compute next due time", "error", err)

			continue
		}

		if err := s.schedules.Save(ctx, schedule); err != nil {
			logger.ErrorContext(ctx, "Failed to update schedule", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Schedule fired", "runs", len(runIDs), "next_due_at", schedule.NextDueAt)
	}

	return fired, nil
}

// ScheduleEvent is the domain event fired for a due schedule. It only routes to the
// schedule's own workflow.
func ScheduleEvent(schedule *models.Schedule) models.Event {
	return models.Event{
		EventType:   models.SubtypeSchedule,
		OccurredFor: schedule.OwnerID,
		Data: map[string]any{
			"cron":               schedule.CronExpression,
			"dueAt":              schedule.NextDueAt.Format(time.RFC3339),
			router.WorkflowIDKey: schedule.WorkflowID,
			"nodeId":             schedule.NodeID,
		},
	}
}
