package models

// Event is an immutable fact reported by an event source, e.g. a follow, a sale or a
// streaming milestone. Data may be arbitrarily nested.
type Event struct {
	EventType   string         `json:"event_type"   validate:"required"`
	OccurredFor string         `json:"occurred_for" validate:"required"`
	Data        map[string]any `json:"data,omitempty"`
}

// NewRunContext seeds the context of a run from its triggering event. The event data is
// available both at the top level ({{fan.email}}) and under "data" ({{data.fan.email}}),
// and the envelope under "event".
func NewRunContext(event Event) map[string]any {
	runContext := make(map[string]any, len(event.Data)+3)

	for key, value := range event.Data {
		runContext[key] = value
	}

	data := event.Data
	if data == nil {
		data = map[string]any{}
	}

	runContext["data"] = data
	runContext["event"] = map[string]any{
		"eventType":   event.EventType,
		"occurredFor": event.OccurredFor,
		"data":        data,
	}

	return runContext
}
