package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/persistence/persistencetest"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", p.root)

	p = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", p.root)
}

func TestFilePersistence(t *testing.T) {
	persistencetest.RunSuite(t, func(t *testing.T) persistence.Persistence {
		return NewPersistence(t.TempDir())
	})
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.ErrorIs(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()), os.ErrNotExist)
}

func TestPersistence_FileLayout(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence("file://" + testDir)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	run := testutil.CreateTestRun(workflow)
	require.NoError(t, p.RunRepository().Save(t.Context(), run))

	assert.FileExists(t, filepath.Join(testDir, "workflows", workflow.ID+".json"))
	assert.FileExists(t, filepath.Join(testDir, "runs", run.ID+".json"))
}

func TestPersistence_CorruptedFile(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)

	require.NoError(t, os.MkdirAll(filepath.Join(testDir, "workflows"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "workflows", "broken.json"), []byte("{not json"), 0600))

	_, err := p.WorkflowRepository().GetByID(t.Context(), "broken")
	require.Error(t, err)
	assert.False(t, persistence.IsWorkflowNotFound(err))

	_, err = p.WorkflowRepository().GetAll(t.Context())
	assert.Error(t, err)
}
