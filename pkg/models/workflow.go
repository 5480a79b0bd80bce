// Package models defines the core domain models for artist workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never started by events
	WorkflowStatusActive   WorkflowStatus = "active"   // Validated, started by matching events
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not started by events
	WorkflowStatusArchived WorkflowStatus = "archived" // Retired, kept for run history
)

// IsValid reports whether s is one of the known workflow statuses.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusPaused, WorkflowStatusArchived:
		return true
	default:
		return false
	}
}

// Workflow is an artist-authored automation: a graph of nodes joined by edges.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	OwnerID   string         `json:"owner_id"   validate:"required"`
	Status    WorkflowStatus `json:"status"     validate:"required"`
	Nodes     []*Node        `json:"nodes"      validate:"dive"`
	Edges     []*Edge        `json:"edges"      validate:"dive"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsActive reports whether events may start runs of the workflow.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// NodeByID returns the node with the given id or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns every trigger node of the workflow in definition order.
func (w *Workflow) TriggerNodes() []*Node {
	triggers := make([]*Node, 0, 1)

	for _, node := range w.Nodes {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
