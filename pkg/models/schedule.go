package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// cronParser accepts the standard 5-field format (minute hour day month weekday).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a 5-field cron expression.
func ParseCron(expression string) (cron.Schedule, error) {
	return cronParser.Parse(expression)
}

// Schedule is the stored form of a "schedule" trigger node of an active workflow.
// NextDueAt is precomputed so the poller can query due entries without
// keeping a timer per workflow.
type Schedule struct {
	ID             string    `json:"id"              validate:"required"`
	WorkflowID     string    `json:"workflow_id"     validate:"required"`
	NodeID         string    `json:"node_id"         validate:"required"`
	OwnerID        string    `json:"owner_id"        validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSchedule creates an active schedule due at the first cron tick after now.
func NewSchedule(id, workflowID, nodeID, ownerID, cronExpression string, now time.Time) (*Schedule, error) {
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		NodeID:         nodeID,
		OwnerID:        ownerID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := schedule.Advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves NextDueAt to the first cron tick strictly after reference.
func (s *Schedule) Advance(reference time.Time) error {
	parsed, err := ParseCron(s.CronExpression)
	if err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	s.NextDueAt = parsed.Next(reference)
	s.UpdatedAt = reference

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.NodeID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	if _, err := ParseCron(s.CronExpression); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	return nil
}
