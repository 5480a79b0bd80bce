package models

import (
	"sort"
	"time"
)

// RunStatus represents the state of one workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether a run in this status can never advance again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Suspension marks a branch parked on a wait node until ResumeAt.
type Suspension struct {
	NodeID   string    `json:"node_id"`
	ResumeAt time.Time `json:"resume_at"`
}

// StepRecord is the outcome of one visited node.
type StepRecord struct {
	NodeID    string    `json:"node_id"`
	Subtype   string    `json:"subtype"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Passed    *bool     `json:"passed,omitempty"` // condition nodes only
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowRun is one execution of a workflow started by one event. While waiting it is
// durable state: Suspensions says where every parked branch continues and when.
type WorkflowRun struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	OwnerID           string         `json:"owner_id"`
	TriggerNodeID     string         `json:"trigger_node_id"`
	TriggeringEvent   Event          `json:"triggering_event"`
	Context           map[string]any `json:"context"`
	Status            RunStatus      `json:"status"`
	CurrentNodeID     string         `json:"current_node_id"`
	ScheduledResumeAt *time.Time     `json:"scheduled_resume_at,omitempty"`
	Suspensions       []Suspension   `json:"suspensions,omitempty"`
	Steps             []StepRecord   `json:"steps,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`

	// ClaimToken and LeaseUntil identify the runner executing a running run. A runner
	// keeps renewing its lease; once the lease has run out the run can be claimed again.
	ClaimToken string     `json:"claim_token,omitempty"`
	LeaseUntil *time.Time `json:"lease_until,omitempty"`
}

// IsDue reports whether the run has at least one suspension ready at now and nobody
// holds it: it is waiting, or it is running under a lease that ran out.
func (r *WorkflowRun) IsDue(now time.Time) bool {
	if r.ScheduledResumeAt == nil || r.ScheduledResumeAt.After(now) {
		return false
	}

	return r.Status == RunStatusWaiting || r.LeaseExpired(now)
}

// LeaseExpired reports whether a running run was abandoned by its runner.
func (r *WorkflowRun) LeaseExpired(now time.Time) bool {
	return r.Status == RunStatusRunning && r.LeaseUntil != nil && !r.LeaseUntil.After(now)
}

// Release drops the claim of a run that is leaving the running status.
func (r *WorkflowRun) Release() {
	r.ClaimToken = ""
	r.LeaseUntil = nil
}

// SplitSuspensions separates the suspensions due at now from those still pending.
func (r *WorkflowRun) SplitSuspensions(now time.Time) (due, pending []Suspension) {
	for _, suspension := range r.Suspensions {
		if suspension.ResumeAt.After(now) {
			pending = append(pending, suspension)
		} else {
			due = append(due, suspension)
		}
	}

	return due, pending
}

// SetSuspensions replaces the parked branches and mirrors the earliest one onto
// CurrentNodeID and ScheduledResumeAt.
func (r *WorkflowRun) SetSuspensions(suspensions []Suspension) {
	sort.SliceStable(suspensions, func(i, j int) bool {
		return suspensions[i].ResumeAt.Before(suspensions[j].ResumeAt)
	})

	r.Suspensions = suspensions

	if len(suspensions) == 0 {
		r.ScheduledResumeAt = nil

		return
	}

	resumeAt := suspensions[0].ResumeAt
	r.CurrentNodeID = suspensions[0].NodeID
	r.ScheduledResumeAt = &resumeAt
}
