package validation

import (
	"testing"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/registry"
	"github.com/stretchr/testify/assert"
)

func node(id string, nodeType models.NodeType, subtype string, config map[string]string) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Subtype: subtype, Config: config}
}

func TestValidate_Empty(t *testing.T) {
	t.Parallel()

	issues := Validate(nil, nil)

	assert.Equal(t, []string{MessageMissingTrigger, MessageMissingAction}, issues)
}

func TestValidate_SingleNodeIsExemptFromEdges(t *testing.T) {
	t.Parallel()

	issues := Validate([]*models.Node{
		node("t1", models.NodeTypeTrigger, models.SubtypeNewFollower, nil),
	}, nil)

	assert.Equal(t, []string{MessageMissingAction}, issues)
	assert.NotContains(t, issues, MessageMissingEdges)
}

func TestValidate_MultipleNodesWithoutEdges(t *testing.T) {
	t.Parallel()

	issues := Validate([]*models.Node{
		node("t1", models.NodeTypeTrigger, models.SubtypeNewFollower, nil),
		node("a1", models.NodeTypeAction, models.SubtypeWait, nil),
	}, []*models.Edge{})

	assert.Equal(t, []string{MessageMissingEdges}, issues)
}

func TestValidate_RequiredFields(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("t1", models.NodeTypeTrigger, models.SubtypeStreamMilestone, map[string]string{"threshold": "   "}),
		node("a1", models.NodeTypeAction, models.SubtypeSendEmail, map[string]string{"to": "{{fan.email}}"}),
		node("a2", models.NodeTypeAction, models.SubtypeCallWebhook, nil),
		node("a3", models.NodeTypeAction, models.SubtypeGenerateAIContent, map[string]string{"prompt": "Write a thank you"}),
	}
	edges := []*models.Edge{
		{ID: "e1", Source: "t1", Target: "a1"},
		{ID: "e2", Source: "a1", Target: "a2"},
		{ID: "e3", Source: "a2", Target: "a3"},
	}

	issues := Validate(nodes, edges)

	assert.Equal(t, []string{
		`"stream_milestone" node is missing required field: threshold`,
		`"send_email" node is missing required field: subject`,
		`"call_webhook" node is missing required field: url`,
	}, issues)
}

func TestValidate_AllChecksCollected(t *testing.T) {
	t.Parallel()

	issues := Validate([]*models.Node{
		node("c1", models.NodeTypeLogic, models.SubtypeIfElse, nil),
		node("s1", models.NodeTypeCondition, models.SubtypeSchedule, nil),
	}, nil)

	assert.Equal(t, []string{
		MessageMissingTrigger,
		MessageMissingAction,
		MessageMissingEdges,
		`"schedule" node is missing required field: cron`,
	}, issues)
}

func TestValidateStructure(t *testing.T) {
	t.Parallel()

	v := New(registry.NewDefault())

	nodes := []*models.Node{
		node("t1", models.NodeTypeTrigger, models.SubtypeNewFollower, nil),
		node("a1", models.NodeTypeAction, models.SubtypeWait, nil),
		node("a1", models.NodeTypeAction, models.SubtypeWait, nil),
		node("a2", models.NodeTypeAction, models.SubtypeWait, nil),
	}
	edges := []*models.Edge{
		{ID: "e1", Source: "t1", Target: "a1"},
		{Source: "a1", Target: "ghost"},
	}

	issues := v.ValidateStructure(nodes, edges)

	assert.Equal(t, []string{
		`Node id "a1" is used more than once.`,
		`Arrow "a1->ghost" points to a missing node.`,
		`Node "a2" is not connected to any other node.`,
	}, issues)

	assert.Empty(t, v.ValidateStructure(nodes[:2], edges[:1]))
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	v := New(registry.NewDefault())

	issues := v.ValidateConfig([]*models.Node{
		node("t1", models.NodeTypeTrigger, models.SubtypeStreamMilestone, map[string]string{"threshold": "a lot"}),
		node("t2", models.NodeTypeTrigger, models.SubtypeSchedule, map[string]string{"cron": "every day"}),
		node("t3", models.NodeTypeTrigger, models.SubtypeTipReceived, map[string]string{"minAmount": "{{settings.minTip}}"}),
		node("a1", models.NodeTypeAction, models.SubtypeWait, map[string]string{"hours": "2", "minutes": ""}),
		node("a2", models.NodeTypeAction, models.SubtypeSendEmail, map[string]string{"haltOnError": "maybe"}),
		node("x1", models.NodeTypeAction, "unknown", map[string]string{"anything": "goes"}),
	})

	assert.Len(t, issues, 3)
	assert.Contains(t, issues[0], `"stream_milestone" node has an invalid value for threshold`)
	assert.Contains(t, issues[1], `"schedule" node has an invalid value for cron`)
	assert.Contains(t, issues[2], `"send_email" node has an invalid value for haltOnError`)
}

func TestValidateConfig_WaitLength(t *testing.T) {
	t.Parallel()

	v := New(registry.NewDefault())

	issues := v.ValidateConfig([]*models.Node{
		node("a1", models.NodeTypeAction, models.SubtypeWait, map[string]string{"hours": "3000000"}),
		node("a2", models.NodeTypeAction, models.SubtypeWait, map[string]string{"hours": "8760"}),
		node("a3", models.NodeTypeAction, models.SubtypeWait, map[string]string{"hours": "{{settings.delay}}"}),
	})

	assert.Equal(t, []string{`"wait" node has an invalid value for hours: wait must not be longer than 365 days`}, issues)
}

func TestValidateWorkflow(t *testing.T) {
	t.Parallel()

	v := New(registry.NewDefault())

	workflow := &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.Node{
			node("t1", models.NodeTypeTrigger, models.SubtypeNewFollower, map[string]string{"eventType": "new_follower"}),
			node("a1", models.NodeTypeAction, models.SubtypeSendEmail, map[string]string{"to": "{{fan.email}}", "subject": "Welcome"}),
		},
		Edges: []*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}

	assert.Empty(t, v.ValidateWorkflow(workflow))

	workflow.Edges = append(workflow.Edges, &models.Edge{ID: "e2", Source: "a1", Target: "missing"})
	assert.Equal(t, []string{`Arrow "e2" points to a missing node.`}, v.ValidateWorkflow(workflow))
}
