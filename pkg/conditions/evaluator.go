// Package conditions evaluates single predicates of condition nodes against a run context.
package conditions

import (
	"math"
	"strings"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/template"
)

const undefined = "undefined"

// Evaluate reports whether condition holds for data. A nil condition always holds, and
// so does an unknown operator. Numeric operators coerce both sides to numbers; a side
// that cannot be coerced compares false.
func Evaluate(condition *models.Condition, data map[string]any) bool {
	if condition == nil {
		return true
	}

	fieldValue, found := template.Lookup(condition.Field, data)

	switch condition.Operator {
	case models.OperatorEquals:
		return stringify(fieldValue, found) == condition.Value
	case models.OperatorNotEquals:
		return stringify(fieldValue, found) != condition.Value
	case models.OperatorGreaterThan:
		return toNumber(fieldValue, found) > models.ParseNumber(condition.Value)
	case models.OperatorLessThan:
		return toNumber(fieldValue, found) < models.ParseNumber(condition.Value)
	case models.OperatorGreaterOrEqual:
		return toNumber(fieldValue, found) >= models.ParseNumber(condition.Value)
	case models.OperatorLessOrEqual:
		return toNumber(fieldValue, found) <= models.ParseNumber(condition.Value)
	case models.OperatorContains:
		return strings.Contains(stringify(fieldValue, found), condition.Value)
	case models.OperatorExists:
		return found && fieldValue != nil
	default:
		return true
	}
}

// EvaluateNode evaluates the condition configured on a condition node.
func EvaluateNode(node *models.Node, data map[string]any) bool {
	return Evaluate(models.ConditionFromConfig(node.Config), data)
}

// Number coerces a context value to a number. Unparsable values yield NaN.
func Number(value any) float64 {
	return toNumber(value, true)
}

func stringify(value any, found bool) string {
	if !found {
		return undefined
	}

	return template.String(value)
}

func toNumber(value any, found bool) float64 {
	if !found {
		return math.NaN()
	}

	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}

		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		return models.ParseNumber(v)
	default:
		return models.ParseNumber(template.String(v))
	}
}
