package models

// Outcome is the structured record returned for one dispatched action, e.g.
// {"sent": true, "to": "fan@example.com"} or {"success": false, "error": "..."}.
type Outcome map[string]any

// Failed reports whether the outcome carries an explicit success=false.
func (o Outcome) Failed() bool {
	success, ok := o["success"].(bool)

	return ok && !success
}

// Err returns the error message of a failed outcome.
func (o Outcome) Err() string {
	message, _ := o["error"].(string)

	return message
}

// FailedOutcome is the outcome recorded when a provider call returns an error.
func FailedOutcome(err error) Outcome {
	return Outcome{"success": false, "error": err.Error()}
}
