package registry

import "github.com/dukex/fanflow/pkg/models"

// numericPattern accepts a plain decimal number or a value built from template tokens.
const numericPattern = `^\s*(-?[0-9]+(\.[0-9]+)?|.*\{\{[^}]*\}\}.*)\s*$`

// RegisterDefaults registers every built-in trigger, condition and action subtype.
func (r *Registry) RegisterDefaults() {
	for _, spec := range triggerSpecs() {
		r.Register(spec)
	}

	for _, spec := range conditionSpecs() {
		r.Register(spec)
	}

	for _, spec := range actionSpecs() {
		r.Register(spec)
	}
}

func triggerSpecs() []NodeSpec {
	return []NodeSpec{
		{
			Subtype:     models.SubtypeNewFollower,
			Type:        models.NodeTypeTrigger,
			Name:        "New follower",
			Description: "Fires when a fan follows the artist",
			Schema:      objectSchema(nil, eventTypeProperty()),
		},
		{
			Subtype:     models.SubtypeNewSale,
			Type:        models.NodeTypeTrigger,
			Name:        "New sale",
			Description: "Fires when an order is placed",
			Schema:      objectSchema(nil, eventTypeProperty()),
		},
		{
			Subtype:     models.SubtypeBopshopSale,
			Type:        models.NodeTypeTrigger,
			Name:        "Shop sale",
			Description: "Fires when a merch shop order is placed",
			Schema:      objectSchema(nil, eventTypeProperty()),
		},
		{
			Subtype:     models.SubtypeTipReceived,
			Type:        models.NodeTypeTrigger,
			Name:        "Tip received",
			Description: "Fires when a fan sends a tip of at least minAmount",
			Schema: objectSchema(nil, eventTypeProperty(), map[string]any{
				"minAmount": numberProperty("Minimum tip amount, inclusive"),
			}),
		},
		{
			Subtype:     models.SubtypeStreamMilestone,
			Type:        models.NodeTypeTrigger,
			Name:        "Stream milestone",
			Description: "Fires when the stream count reaches threshold",
			Required:    []string{"threshold"},
			Schema: objectSchema([]string{"threshold"}, eventTypeProperty(), map[string]any{
				"threshold": numberProperty("Stream count that must be reached, inclusive"),
			}),
		},
		{
			Subtype:     models.SubtypeFollowerMilestone,
			Type:        models.NodeTypeTrigger,
			Name:        "Follower milestone",
			Description: "Fires when the follower count reaches threshold",
			Required:    []string{"threshold"},
			Schema: objectSchema([]string{"threshold"}, eventTypeProperty(), map[string]any{
				"threshold": numberProperty("Follower count that must be reached, inclusive"),
			}),
		},
		{
			Subtype:     models.SubtypeSchedule,
			Type:        models.NodeTypeTrigger,
			Name:        "Schedule",
			Description: "Fires on a 5-field cron schedule",
			Required:    []string{"cron"},
			Schema: objectSchema([]string{"cron"}, eventTypeProperty(), map[string]any{
				"cron": stringProperty("Cron expression (minute hour day month weekday)"),
			}),
		},
		{
			Subtype:     models.SubtypeManual,
			Type:        models.NodeTypeTrigger,
			Name:        "Manual",
			Description: "Fires for any event unless an eventType is set",
			Schema:      objectSchema(nil, eventTypeProperty()),
		},
	}
}

func conditionSpecs() []NodeSpec {
	properties := map[string]any{
		"field": stringProperty("Dot path into the run context, e.g. data.amount"),
		"operator": map[string]any{
			"type": "string",
			"enum": []string{
				string(models.OperatorEquals), string(models.OperatorNotEquals),
				string(models.OperatorGreaterThan), string(models.OperatorLessThan),
				string(models.OperatorGreaterOrEqual), string(models.OperatorLessOrEqual),
				string(models.OperatorContains), string(models.OperatorExists),
			},
		},
		"value": stringProperty("Value compared against the field"),
	}

	return []NodeSpec{
		{
			Subtype:     models.SubtypeIfElse,
			Type:        models.NodeTypeCondition,
			Name:        "If / else",
			Description: "Follows true arrows when the condition holds and false arrows otherwise",
			Schema:      objectSchema(nil, properties),
		},
		{
			Subtype:     models.SubtypeFilter,
			Type:        models.NodeTypeCondition,
			Name:        "Filter",
			Description: "Stops the branch unless the condition holds",
			Schema:      objectSchema(nil, properties),
		},
	}
}

func actionSpecs() []NodeSpec {
	return []NodeSpec{
		{
			Subtype:     models.SubtypeSendEmail,
			Type:        models.NodeTypeAction,
			Name:        "Send email",
			Description: "Sends an email through the configured email provider",
			Required:    []string{"to", "subject"},
			Schema: actionSchema([]string{"to", "subject"}, map[string]any{
				"to":      stringProperty("Recipient address, e.g. {{fan.email}}"),
				"subject": stringProperty("Subject line"),
				"body":    stringProperty("Message body"),
			}),
		},
		{
			Subtype:     models.SubtypeSendNotification,
			Type:        models.NodeTypeAction,
			Name:        "Send notification",
			Description: "Sends an in-app notification to the listed recipients, or to the artist when none are listed",
			Required:    []string{"title"},
			Schema: actionSchema([]string{"title"}, map[string]any{
				"title":      stringProperty("Notification title"),
				"body":       stringProperty("Notification body"),
				"recipients": stringProperty("Comma separated recipient ids"),
			}),
		},
		{
			Subtype:     models.SubtypeNotifyFans,
			Type:        models.NodeTypeAction,
			Name:        "Notify fans",
			Description: "Notifies every follower of the artist in batches of 100",
			Required:    []string{"title"},
			Schema: actionSchema([]string{"title"}, map[string]any{
				"title": stringProperty("Notification title"),
				"body":  stringProperty("Notification body"),
			}),
		},
		{
			Subtype:     models.SubtypeCallWebhook,
			Type:        models.NodeTypeAction,
			Name:        "Call webhook",
			Description: "POSTs a JSON payload to a URL",
			Required:    []string{"url"},
			Schema: actionSchema([]string{"url"}, map[string]any{
				"url":     stringProperty("Target URL"),
				"payload": stringProperty("JSON payload; defaults to the run context"),
			}),
		},
		{
			Subtype:     models.SubtypeGenerateAIContent,
			Type:        models.NodeTypeAction,
			Name:        "Generate AI content",
			Description: "Generates text and stores it in the run context under ai.<outputKey>",
			Required:    []string{"prompt"},
			Schema: actionSchema([]string{"prompt"}, map[string]any{
				"prompt":       stringProperty("User prompt"),
				"systemPrompt": stringProperty("System prompt"),
				"outputKey":    stringProperty("Context key under ai.* receiving the text"),
			}),
		},
		{
			Subtype:     models.SubtypeWait,
			Type:        models.NodeTypeAction,
			Name:        "Wait",
			Description: "Suspends the branch for minutes + hours",
			Schema: actionSchema(nil, map[string]any{
				"minutes": numberProperty("Minutes to wait"),
				"hours":   numberProperty("Hours to wait"),
			}),
		},
		{
			Subtype:     models.SubtypePostInstagram,
			Type:        models.NodeTypeAction,
			Name:        "Post to Instagram",
			Description: "Publishes a caption to Instagram",
			Schema:      actionSchema(nil, socialProperties()),
		},
		{
			Subtype:     models.SubtypePostTwitter,
			Type:        models.NodeTypeAction,
			Name:        "Post to Twitter",
			Description: "Publishes a caption to Twitter",
			Schema:      actionSchema(nil, socialProperties()),
		},
	}
}

func socialProperties() map[string]any {
	return map[string]any{
		"caption": stringProperty("Post caption"),
		"body":    stringProperty("Fallback caption"),
	}
}

func eventTypeProperty() map[string]any {
	return map[string]any{
		"eventType": stringProperty("Event type to match; empty matches every event"),
	}
}

func actionSchema(required []string, properties map[string]any) map[string]any {
	return objectSchema(required, properties, map[string]any{
		"haltOnError": map[string]any{
			"type": "string",
			"enum": []string{"", "true", "false"},
		},
	})
}

func objectSchema(required []string, propertySets ...map[string]any) map[string]any {
	properties := make(map[string]any)

	for _, set := range propertySets {
		for name, property := range set {
			properties[name] = property
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": map[string]any{"type": "string"},
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func stringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func numberProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"pattern":     numericPattern,
	}
}
