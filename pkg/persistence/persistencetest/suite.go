// Package persistencetest holds the behaviour every persistence.Persistence must share.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the contract against the stores built by factory. Subtests run sequentially
// so factories may share one backing database.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	tests := []struct {
		name string
		run  func(t *testing.T, p persistence.Persistence)
	}{
		{"workflow round trip", workflowRoundTrip},
		{"missing workflow", missingWorkflow},
		{"delete workflow", deleteWorkflow},
		{"execution round trip", executionRoundTrip},
		{"register updates", registerUpdates},
		{"missing execution", missingExecution},
		{"executions by workflow", executionsByWorkflow},
		{"delete idles", deleteIdles},
		{"list executions by status", listExecutions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := factory(t)
			t.Cleanup(func() {
				_ = p.Close(context.Background())
			})

			require.NoError(t, p.HealthCheck(context.Background()))

			tt.run(t, p)
		})
	}
}

func workflowRoundTrip(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.ForkJoinWorkflow("wf-1",
		map[string]any{"a": "true", "b": "val > 10"},
		map[string]any{"await": []any{"a", "b"}},
	)
	workflow.Description = "fan out and back"

	require.NoError(t, p.SaveWorkflow(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	got, err := p.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.ID)
	assert.Equal(t, "fan out and back", got.Description)
	require.Len(t, got.Nodes, len(workflow.Nodes))

	fork, ok := got.Node("fork")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeDecision, fork.Type)
	assert.Equal(t, "core:fork", fork.Component)
	assert.Equal(t, []string{"a", "b"}, fork.Children)

	conditions, ok := fork.Config["conditions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "val > 10", conditions["b"])

	require.NoError(t, p.SaveWorkflow(ctx, testutil.LinearWorkflow("wf-2")))

	all, err := p.Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func missingWorkflow(t *testing.T, p persistence.Persistence) {
	_, err := p.GetWorkflow(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func deleteWorkflow(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	require.NoError(t, p.SaveWorkflow(ctx, testutil.LinearWorkflow("wf-1")))
	require.NoError(t, p.DeleteWorkflow(ctx, "wf-1"))

	_, err := p.GetWorkflow(ctx, "wf-1")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	assert.ErrorIs(t, p.DeleteWorkflow(ctx, "wf-1"), persistence.ErrWorkflowNotFound)
}

func executionRoundTrip(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.LinearWorkflow("wf-1")
	execution := testutil.Execution(workflow, "start", "task")

	start := execution.NodeExecutions[0]
	task := execution.NodeExecutions[1]
	start.Transition(models.NodeStateDone)
	start.Children = []string{task.ID}
	task.StageContext = start.StageContext.DeriveFor("task", "start")
	task.StageContext.Set("greeting", "hello")
	task.StageContext.AppendDecision(models.Decision{
		DecisionNode: "start",
		OptionNodes:  map[string]bool{"task": true},
	})
	task.Error = &models.ErrorPayload{Kind: "ComponentExecutionError", Message: "boom"}
	execution.ParentExecutionID = "listener"
	execution.Status = models.ExecutionStatusInProgress

	registered, err := p.Register(ctx, execution)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, registered.ID)

	got, err := p.GetWorkflowExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "listener", got.ParentExecutionID)
	assert.Equal(t, models.ExecutionStatusInProgress, got.Status)
	assert.WithinDuration(t, execution.CreatedAt, got.CreatedAt, time.Millisecond)
	require.Len(t, got.NodeExecutions, 2)

	gotStart, ok := got.NodeExecution(start.ID)
	require.True(t, ok)
	assert.Equal(t, models.NodeStateDone, gotStart.State)
	assert.Equal(t, []string{task.ID}, gotStart.Children)
	assert.Equal(t, models.NodeTypeStart, gotStart.Type())

	gotTask, ok := got.NodeExecution(task.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", gotTask.StageContext.Data["greeting"])
	assert.Equal(t, "ComponentExecutionError", gotTask.Error.Kind)

	decision, ok := gotTask.StageContext.LastDecisionFor("start")
	require.True(t, ok)
	assert.True(t, decision.OptionNodes["task"])
	assert.Equal(t, map[string]bool{"start": true, "task": true}, gotTask.StageContext.Graph().Upstream())
}

func registerUpdates(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	execution := testutil.Execution(testutil.LinearWorkflow("wf-1"), "start")

	_, err := p.Register(ctx, execution)
	require.NoError(t, err)

	execution.Status = models.ExecutionStatusSuccess
	execution.NodeExecutions[0].Transition(models.NodeStateDone)
	execution.Touch()

	_, err = p.Register(ctx, execution)
	require.NoError(t, err)

	got, err := p.GetWorkflowExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	assert.Equal(t, models.NodeStateDone, got.NodeExecutions[0].State)

	all, err := p.ExecutionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func missingExecution(t *testing.T, p persistence.Persistence) {
	_, err := p.GetWorkflowExecution(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func executionsByWorkflow(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	first := testutil.Execution(testutil.LinearWorkflow("wf-1"), "start")
	second := testutil.Execution(testutil.LinearWorkflow("wf-1"), "start")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := testutil.Execution(testutil.LinearWorkflow("wf-2"), "start")

	for _, execution := range []*models.WorkflowExecution{second, other, first} {
		_, err := p.Register(ctx, execution)
		require.NoError(t, err)
	}

	executions, err := p.ExecutionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, first.ID, executions[0].ID)
	assert.Equal(t, second.ID, executions[1].ID)

	none, err := p.ExecutionsByWorkflow(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func deleteIdles(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.LinearWorkflow("wf-1")

	idle := testutil.Execution(workflow, "start")

	listening := testutil.Execution(workflow, "start")
	listening.NodeExecutions[0].Transition(models.NodeStateDone)

	running := testutil.Execution(workflow, "start")
	running.Status = models.ExecutionStatusInProgress

	otherIdle := testutil.Execution(testutil.LinearWorkflow("wf-2"), "start")

	for _, execution := range []*models.WorkflowExecution{idle, listening, running, otherIdle} {
		_, err := p.Register(ctx, execution)
		require.NoError(t, err)
	}

	require.NoError(t, p.DeleteIdlesFor(ctx, "wf-1"))

	_, err := p.GetWorkflowExecution(ctx, idle.ID)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	for _, kept := range []*models.WorkflowExecution{listening, running, otherIdle} {
		_, err := p.GetWorkflowExecution(ctx, kept.ID)
		assert.NoError(t, err, kept.ID)
	}
}

func listExecutions(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	workflow := testutil.LinearWorkflow("wf-1")

	statuses := []models.ExecutionStatus{
		models.ExecutionStatusPending,
		models.ExecutionStatusInProgress,
		models.ExecutionStatusInProgress,
		models.ExecutionStatusSuccess,
	}

	for _, status := range statuses {
		execution := testutil.Execution(workflow, "start")
		execution.Status = status

		_, err := p.Register(ctx, execution)
		require.NoError(t, err)
	}

	all, err := p.ListExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	inProgress, err := p.ListExecutions(ctx, models.ExecutionStatusInProgress)
	require.NoError(t, err)
	assert.Len(t, inProgress, 2)

	done, err := p.ListExecutions(ctx, models.ExecutionStatusSuccess, models.ExecutionStatusError)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, done[0].Status)
}
