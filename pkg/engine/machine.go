package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/qmuntal/stateless"
)

// ErrInvalidTransition is returned when a run is asked to move to a status its current
// status does not allow, e.g. resuming a completed run.
var ErrInvalidTransition = errors.New("invalid run transition")

type runTrigger string

const (
	triggerSuspend  runTrigger = "suspend"
	triggerResume   runTrigger = "resume"
	triggerComplete runTrigger = "complete"
	triggerFail     runTrigger = "fail"
)

// newMachine starts at status:
//
//	running -> waiting | completed | failed
//	waiting -> running | failed
//
// completed and failed are terminal.
func newMachine(status models.RunStatus) *stateless.StateMachine {
	machine := stateless.NewStateMachine(status)

	machine.Configure(models.RunStatusRunning).
		Permit(triggerSuspend, models.RunStatusWaiting).
		Permit(triggerComplete, models.RunStatusCompleted).
		Permit(triggerFail, models.RunStatusFailed)

	machine.Configure(models.RunStatusWaiting).
		Permit(triggerResume, models.RunStatusRunning).
		Permit(triggerFail, models.RunStatusFailed)

	machine.Configure(models.RunStatusCompleted)
	machine.Configure(models.RunStatusFailed)

	return machine
}

// transition moves run.Status along t or returns ErrInvalidTransition.
func transition(run *models.WorkflowRun, t runTrigger) error {
	machine := newMachine(run.Status)

	if err := machine.Fire(t); err != nil {
		return fmt.Errorf("%w: cannot %s a %s run: %v", ErrInvalidTransition, t, run.Status, err)
	}

	run.Status = machine.MustState().(models.RunStatus)

	return nil
}
