package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		runErr := persistence.NewRunError("ClaimRun", "run-1", persistence.ErrRunAlreadyClaimed)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.False(t, persistence.IsRunNotFound(workflowErr))
		assert.True(t, persistence.IsRunAlreadyClaimed(runErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(runErr, persistence.ErrRunAlreadyClaimed))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Delete", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("run error contains context", func(t *testing.T) {
		err := persistence.NewRunError("GetByID", "run-9", persistence.ErrRunNotFound)

		assert.Equal(t, "GetByID operation failed for run run-9: run not found", err.Error())
		assert.ErrorIs(t, err, persistence.ErrRunNotFound)
	})
}
