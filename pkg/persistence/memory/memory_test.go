package memory_test

import (
	"context"
	"testing"

	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/persistence/persistencetest"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	return store
}

func TestMemoryPersistence(t *testing.T) {
	persistencetest.RunSuite(t, newStore)
}

func TestMemoryPersistence_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	workflow.Name = "changed after save"

	loaded, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome new followers", loaded.Name)

	loaded.Nodes[0].Config["eventType"] = "mutated"

	reloaded, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "new_follower", reloaded.Nodes[0].Config["eventType"])
}
