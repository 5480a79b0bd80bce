// Package triggers decides whether a domain event satisfies a trigger node.
package triggers

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/fanflow/pkg/conditions"
	"github.com/dukex/fanflow/pkg/models"
)

// Refinement narrows a match once the event type already agrees with the trigger.
type Refinement func(node *models.Node, event models.Event) bool

// Matcher holds the per-subtype refinements. Subtypes without one match on event
// type alone.
type Matcher struct {
	logger      *slog.Logger
	refinements map[string]Refinement
}

// NewMatcher creates a matcher with the built-in refinements registered.
func NewMatcher(logger *slog.Logger) *Matcher {
	matcher := &Matcher{
		logger:      logger.With("module", "trigger_matcher"),
		refinements: make(map[string]Refinement),
	}

	matcher.Register(models.SubtypeStreamMilestone, milestoneReached)
	matcher.Register(models.SubtypeFollowerMilestone, milestoneReached)
	matcher.Register(models.SubtypeNewFollower, requireData("followerId"))
	matcher.Register(models.SubtypeNewSale, requireData("orderId"))
	matcher.Register(models.SubtypeBopshopSale, requireData("orderId"))
	matcher.Register(models.SubtypeTipReceived, tipAboveMinimum)

	return matcher
}

// Register sets the refinement used for a trigger subtype.
func (m *Matcher) Register(subtype string, refinement Refinement) {
	m.refinements[subtype] = refinement
}

// Match reports whether event satisfies the trigger node. A trigger without an
// eventType in its config matches every event. A refinement that panics counts as no
// match so that one broken workflow never blocks the others.
func (m *Matcher) Match(node *models.Node, event models.Event) (matched bool) {
	if node == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Trigger refinement panicked",
				"node_id", node.ID,
				"subtype", node.Subtype,
				"error", fmt.Sprint(r))

			matched = false
		}
	}()

	eventType := node.ConfigValue("eventType")
	if eventType == "" {
		return true
	}

	if eventType != event.EventType {
		return false
	}

	refinement, ok := m.refinements[node.Subtype]
	if !ok {
		return true
	}

	return refinement(node, event)
}

// milestoneReached compares the first count carried by the event, in the order
// count, streams, followers, against the configured threshold.
func milestoneReached(node *models.Node, event models.Event) bool {
	count := 0.0

	for _, key := range []string{"count", "streams", "followers"} {
		if value, ok := event.Data[key]; ok && value != nil {
			count = conditions.Number(value)

			break
		}
	}

	return count >= node.ConfigFloat("threshold", 0)
}

func tipAboveMinimum(node *models.Node, event models.Event) bool {
	amount := 0.0
	if value, ok := event.Data["amount"]; ok && value != nil {
		amount = conditions.Number(value)
	}

	return amount >= node.ConfigFloat("minAmount", 0)
}

func requireData(key string) Refinement {
	return func(_ *models.Node, event models.Event) bool {
		return present(event.Data[key])
	}
}

func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}
