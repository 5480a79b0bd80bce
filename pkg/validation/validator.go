// Package validation statically checks workflow definitions before they may be activated.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/registry"
	"github.com/dukex/fanflow/pkg/template"
	"github.com/xeipuuv/gojsonschema"
)

const (
	MessageMissingTrigger = "Add at least one Trigger node."
	MessageMissingAction  = "Add at least one Action node."
	MessageMissingEdges   = "Connect your nodes with arrows."
)

// Validator checks definitions against the node specs of a registry.
type Validator struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

var defaultValidator = New(registry.NewDefault())

// Validate runs the graph shape and required field checks with the built-in registry.
func Validate(nodes []*models.Node, edges []*models.Edge) []string {
	return defaultValidator.Validate(nodes, edges)
}

// Validate returns the author-facing issues of a definition, in check order. An empty
// slice means the definition is valid.
func (v *Validator) Validate(nodes []*models.Node, edges []*models.Edge) []string {
	issues := make([]string, 0)

	hasTrigger, hasAction := false, false

	for _, node := range nodes {
		hasTrigger = hasTrigger || node.IsTrigger()
		hasAction = hasAction || node.IsAction()
	}

	if !hasTrigger {
		issues = append(issues, MessageMissingTrigger)
	}

	if !hasAction {
		issues = append(issues, MessageMissingAction)
	}

	if len(nodes) > 1 && len(edges) == 0 {
		issues = append(issues, MessageMissingEdges)
	}

	for _, node := range nodes {
		for _, field := range v.registry.RequiredFields(node.Subtype) {
			if node.ConfigValue(field) == "" {
				issues = append(issues, fmt.Sprintf("%q node is missing required field: %s", node.Subtype, field))
			}
		}
	}

	return issues
}

// ValidateStructure reports duplicate node ids, arrows to unknown nodes and, once the
// author has drawn arrows, nodes that no arrow touches.
func (v *Validator) ValidateStructure(nodes []*models.Node, edges []*models.Edge) []string {
	issues := make([]string, 0)
	known := make(map[string]int, len(nodes))

	for _, node := range nodes {
		known[node.ID]++
		if known[node.ID] == 2 {
			issues = append(issues, fmt.Sprintf("Node id %q is used more than once.", node.ID))
		}
	}

	connected := make(map[string]bool, len(nodes))

	for _, edge := range edges {
		if known[edge.Source] == 0 || known[edge.Target] == 0 {
			issues = append(issues, fmt.Sprintf("Arrow %q points to a missing node.", edgeLabel(edge)))

			continue
		}

		connected[edge.Source] = true
		connected[edge.Target] = true
	}

	if len(nodes) > 1 && len(edges) > 0 {
		for _, node := range nodes {
			if !connected[node.ID] {
				issues = append(issues, fmt.Sprintf("Node %q is not connected to any other node.", node.ID))
			}
		}
	}

	return issues
}

// ValidateConfig checks every non-blank config value against the JSON schema of its
// subtype, cron expressions of schedule triggers and the length of waits. Blank values are left to Validate.
func (v *Validator) ValidateConfig(nodes []*models.Node) []string {
	issues := make([]string, 0)

	for _, node := range nodes {
		spec, ok := v.registry.Lookup(node.Subtype)
		if !ok {
			continue
		}

		document := make(map[string]any, len(node.Config))

		for key, value := range node.Config {
			if strings.TrimSpace(value) != "" {
				document[key] = value
			}
		}

		issues = append(issues, schemaIssues(node.Subtype, spec.Schema, document)...)

		cron := node.ConfigValue("cron")
		if node.Subtype == models.SubtypeSchedule && cron != "" && !template.HasTokens(cron) {
			if _, err := models.ParseCron(cron); err != nil {
				issues = append(issues, invalidValue(node.Subtype, "cron", err.Error()))
			}
		}

		if node.Subtype == models.SubtypeWait && !template.HasTokens(node.ConfigValue("minutes")+node.ConfigValue("hours")) &&
			models.WaitMilliseconds(node.Config) > float64(models.MaxWaitDelay.Milliseconds()) {
			issues = append(issues, invalidValue(node.Subtype, "hours", "wait must not be longer than 365 days"))
		}
	}

	return issues
}

// ValidateWorkflow runs every check. Activation requires an empty result.
func (v *Validator) ValidateWorkflow(workflow *models.Workflow) []string {
	issues := v.Validate(workflow.Nodes, workflow.Edges)
	issues = append(issues, v.ValidateStructure(workflow.Nodes, workflow.Edges)...)

	return append(issues, v.ValidateConfig(workflow.Nodes)...)
}

func schemaIssues(subtype string, schema map[string]any, document map[string]any) []string {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return []string{invalidValue(subtype, "config", err.Error())}
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))

	for _, resultError := range result.Errors() {
		if resultError.Type() == "required" {
			continue
		}

		issues = append(issues, invalidValue(subtype, resultError.Field(), resultError.Description()))
	}

	sort.Strings(issues)

	return issues
}

func invalidValue(subtype, field, reason string) string {
	return fmt.Sprintf("%q node has an invalid value for %s: %s", subtype, field, reason)
}

func edgeLabel(edge *models.Edge) string {
	if edge.ID != "" {
		return edge.ID
	}

	return edge.Source + "->" + edge.Target
}
