package models

import "strings"

// Operator names a comparison performed by a condition.
type Operator string

const (
	OperatorEquals         Operator = "equals"
	OperatorNotEquals      Operator = "not_equals"
	OperatorGreaterThan    Operator = "greater_than"
	OperatorLessThan       Operator = "less_than"
	OperatorGreaterOrEqual Operator = "greater_or_equal"
	OperatorLessOrEqual    Operator = "less_or_equal"
	OperatorContains       Operator = "contains"
	OperatorExists         Operator = "exists"
)

// Condition is a single predicate over the run context. Field is a dot path.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// ConditionFromConfig builds the condition of a condition node. A config without a
// field yields nil, which always passes.
func ConditionFromConfig(config map[string]string) *Condition {
	field := strings.TrimSpace(config["field"])
	if field == "" {
		return nil
	}

	return &Condition{
		Field:    field,
		Operator: Operator(strings.TrimSpace(config["operator"])),
		Value:    config["value"],
	}
}
