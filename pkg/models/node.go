package models

import (
	"math"
	"strings"
)

// NodeType is the broad category of a workflow node.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeLogic     NodeType = "logic" // Alias of NodeTypeCondition used by older definitions
)

// Trigger subtypes.
const (
	SubtypeNewFollower       = "new_follower"
	SubtypeNewSale           = "new_sale"
	SubtypeBopshopSale       = "bopshop_sale"
	SubtypeTipReceived       = "tip_received"
	SubtypeStreamMilestone   = "stream_milestone"
	SubtypeFollowerMilestone = "follower_milestone"
	SubtypeSchedule          = "schedule"
	SubtypeManual            = "manual"
)

// Action subtypes.
const (
	SubtypeSendEmail         = "send_email"
	SubtypeSendNotification  = "send_notification"
	SubtypeNotifyFans        = "notify_fans"
	SubtypeCallWebhook       = "call_webhook"
	SubtypeGenerateAIContent = "generate_ai_content"
	SubtypeWait              = "wait"
	SubtypePostInstagram     = "post_instagram"
	SubtypePostTwitter       = "post_twitter"
)

// Condition subtypes.
const (
	SubtypeIfElse = "if_else"
	SubtypeFilter = "filter"
)

// Node is one vertex of a workflow graph. Config values are plain strings that may
// contain {{path}} template tokens.
type Node struct {
	ID      string            `json:"id"      validate:"required"`
	Type    NodeType          `json:"type"    validate:"required,oneof=trigger action condition logic"`
	Subtype string            `json:"subtype" validate:"required"`
	Name    string            `json:"name,omitempty"`
	Config  map[string]string `json:"config"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

func (n *Node) IsAction() bool {
	return n.Type == NodeTypeAction
}

// IsCondition treats the legacy "logic" type as a condition.
func (n *Node) IsCondition() bool {
	return n.Type == NodeTypeCondition || n.Type == NodeTypeLogic
}

// ConfigValue returns the trimmed config value for key, or "" when absent.
func (n *Node) ConfigValue(key string) string {
	if n.Config == nil {
		return ""
	}

	return strings.TrimSpace(n.Config[key])
}

// ConfigFloat parses a numeric config value with ParseNumber, returning def when it is
// absent or malformed.
func (n *Node) ConfigFloat(key string, def float64) float64 {
	raw := n.ConfigValue(key)
	if raw == "" {
		return def
	}

	value := ParseNumber(raw)
	if math.IsNaN(value) {
		return def
	}

	return value
}

// Edge is a directed arc between two nodes. Branch is only meaningful on edges leaving
// a condition node: "true" edges are followed when the condition holds, "false" edges
// when it does not. An empty branch behaves like "true".
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"           validate:"required"`
	Target string `json:"target"           validate:"required"`
	Branch string `json:"branch,omitempty" validate:"omitempty,oneof=true false"`
}

const (
	BranchTrue  = "true"
	BranchFalse = "false"
)
