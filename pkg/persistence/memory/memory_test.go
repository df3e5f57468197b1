package memory_test

import (
	"context"
	"testing"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/persistence/memory"
	"github.com/dukex/orchestra/pkg/persistence/persistencetest"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(*testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}

func TestPersistence_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	execution := testutil.Execution(testutil.LinearWorkflow("wf"), "start")

	_, err := p.Register(ctx, execution)
	require.NoError(t, err)

	got, err := p.GetWorkflowExecution(ctx, execution.ID)
	require.NoError(t, err)

	got.NodeExecutions[0].Transition(models.NodeStateFailed)

	again, err := p.GetWorkflowExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateIdle, again.NodeExecutions[0].State)
}
