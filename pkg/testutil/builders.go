// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates an action node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:      uuid.New().String(),
		Type:    models.NodeTypeAction,
		Subtype: models.SubtypeSendEmail,
		Name:    "Test Node",
		Config: map[string]string{
			"to":      "{{fan.email}}",
			"subject": "Thanks for following",
			"body":    "Hi {{fan.name}}",
		},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTrigger configures the node as a trigger of the given subtype.
func WithTrigger(subtype string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeTrigger
		n.Subtype = subtype
		n.Config = map[string]string{"eventType": subtype}
	}
}

// WithAction configures the node as an action of the given subtype.
func WithAction(subtype string, config map[string]string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeAction
		n.Subtype = subtype
		n.Config = config
	}
}

// WithCondition configures the node as an if_else condition.
func WithCondition(field string, operator models.Operator, value string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeCondition
		n.Subtype = models.SubtypeIfElse
		n.Config = map[string]string{"field": field, "operator": string(operator), "value": value}
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]string) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// Edge joins source to target.
func Edge(source, target string) *models.Edge {
	return &models.Edge{ID: source + "->" + target, Source: source, Target: target}
}

// BranchEdge joins a condition node to target on one branch.
func BranchEdge(source, target, branch string) *models.Edge {
	return &models.Edge{ID: source + "->" + target + ":" + branch, Source: source, Target: target, Branch: branch}
}

// CreateTestWorkflow creates an active "new follower -> send email" workflow that can be
// overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC().Truncate(time.Millisecond)

	workflow := &models.Workflow{
		ID:      uuid.New().String(),
		Name:    "Welcome new followers",
		OwnerID: "artist-1",
		Status:  models.WorkflowStatusActive,
		Nodes: []*models.Node{
			CreateTestNode(WithID("trigger"), WithTrigger(models.SubtypeNewFollower)),
			CreateTestNode(WithID("email")),
		},
		Edges:     []*models.Edge{Edge("trigger", "email")},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithOwner sets the workflow owner.
func WithOwner(ownerID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.OwnerID = ownerID
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithGraph replaces the nodes and edges of the workflow.
func WithGraph(nodes []*models.Node, edges []*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
		w.Edges = edges
	}
}

// CreateTestRun creates a running run of workflow triggered by a new_follower event.
func CreateTestRun(workflow *models.Workflow, overrides ...func(*models.WorkflowRun)) *models.WorkflowRun {
	now := time.Now().UTC().Truncate(time.Millisecond)
	event := FollowerEvent(workflow.OwnerID)

	run := &models.WorkflowRun{
		ID:              uuid.New().String(),
		WorkflowID:      workflow.ID,
		OwnerID:         workflow.OwnerID,
		TriggerNodeID:   "trigger",
		TriggeringEvent: event,
		Context:         models.NewRunContext(event),
		Status:          models.RunStatusRunning,
		CurrentNodeID:   "trigger",
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithWaitingUntil parks the run on nodeID until resumeAt.
func WithWaitingUntil(nodeID string, resumeAt time.Time) func(*models.WorkflowRun) {
	return func(r *models.WorkflowRun) {
		r.Status = models.RunStatusWaiting
		r.SetSuspensions([]models.Suspension{{NodeID: nodeID, ResumeAt: resumeAt}})
	}
}

// FollowerEvent is a new_follower event for ownerID.
func FollowerEvent(ownerID string) models.Event {
	return models.Event{
		EventType:   models.SubtypeNewFollower,
		OccurredFor: ownerID,
		Data: map[string]any{
			"followerId": "fan-1",
			"fan":        map[string]any{"email": "x@y.com", "name": "Robin"},
		},
	}
}
