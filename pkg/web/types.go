// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/dukex/fanflow/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateWorkflowRequest represents the request body for creating a new draft workflow.
type CreateWorkflowRequest struct {
	Name    string         `json:"name"     validate:"required,min=3"`
	OwnerID string         `json:"owner_id" validate:"required"`
	Nodes   []*models.Node `json:"nodes"    validate:"dive"`
	Edges   []*models.Edge `json:"edges"    validate:"dive"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name  *string        `json:"name,omitempty"  validate:"omitempty,min=3"`
	Nodes []*models.Node `json:"nodes,omitempty" validate:"omitempty,dive"`
	Edges []*models.Edge `json:"edges,omitempty" validate:"omitempty,dive"`
}

// ValidateWorkflowRequest carries a graph to check without storing it.
type ValidateWorkflowRequest struct {
	Nodes []*models.Node `json:"nodes"`
	Edges []*models.Edge `json:"edges"`
}

type ValidateWorkflowResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// FireEventRequest is a domain event reported by an event source.
type FireEventRequest struct {
	EventType   string         `json:"event_type"   validate:"required"`
	OccurredFor string         `json:"occurred_for" validate:"required"`
	Data        map[string]any `json:"data"`
}

type FireEventResponse struct {
	RunIDs []string `json:"run_ids"`
}

// ToEvent converts the request into a domain event.
func (r FireEventRequest) ToEvent() models.Event {
	return models.Event{EventType: r.EventType, OccurredFor: r.OccurredFor, Data: r.Data}
}
