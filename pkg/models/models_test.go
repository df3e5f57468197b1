package models_test

import (
	"testing"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_DeriveFor(t *testing.T) {
	t.Parallel()

	parent := models.NewExecutionContext()
	parent.Set("val", 15)
	parent.Set("nested", map[string]any{"a": 1})
	parent.AppendDecision(models.Decision{DecisionNode: "fork", OptionNodes: map[string]bool{"x": true}})

	child := parent.DeriveFor("task", "fork")

	assert.Equal(t, 15, child.Data["val"])
	require.Len(t, child.Decisions, 1)
	require.Len(t, child.GraphNodes, 2)
	assert.Equal(t, models.GraphNode{Node: "fork", State: models.NodeStateDone}, child.GraphNodes[0])
	assert.Equal(t, "task", child.GraphNodes[1].Node)
	assert.Equal(t, []string{"fork"}, child.GraphNodes[1].Parents)

	child.Data["nested"].(map[string]any)["a"] = 2
	child.Decisions[0].OptionNodes["x"] = false

	assert.Equal(t, 1, parent.Data["nested"].(map[string]any)["a"])
	assert.True(t, parent.Decisions[0].OptionNodes["x"])
	assert.Empty(t, parent.GraphNodes)
}

func TestExecutionContext_DeriveForLoopKeepsHistoryBounded(t *testing.T) {
	t.Parallel()

	ctx := models.NewExecutionContext().DeriveFor("check", "start")
	ctx = ctx.DeriveFor("work", "check")
	ctx = ctx.DeriveFor("check", "work")
	ctx = ctx.DeriveFor("work", "check")

	assert.Len(t, ctx.GraphNodes, 3)

	last := ctx.GraphNodes[len(ctx.GraphNodes)-1]
	assert.Equal(t, "work", last.Node)

	check, ok := ctx.Graph().Vertex("check")
	require.True(t, ok)
	assert.Len(t, check.Parents, 2)
}

func TestExecutionContext_LastDecisionFor(t *testing.T) {
	t.Parallel()

	ctx := models.NewExecutionContext()
	ctx.AppendDecision(models.Decision{DecisionNode: "d", OptionNodes: map[string]bool{"x": true}})
	ctx.AppendDecision(models.Decision{DecisionNode: "other", OptionNodes: map[string]bool{"z": true}})
	ctx.AppendDecision(models.Decision{DecisionNode: "d", OptionNodes: map[string]bool{"y": true}})

	decision, ok := ctx.LastDecisionFor("d")
	require.True(t, ok)
	assert.True(t, decision.OptionNodes["y"])

	_, ok = ctx.LastDecisionFor("missing")
	assert.False(t, ok)
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		workflow *models.Workflow
		wantErr  string
	}{
		{
			name: "valid",
			workflow: &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
				{ID: "start", Type: models.NodeTypeStart, Children: []string{"end"}},
				{ID: "end", Type: models.NodeTypeEnd},
			}},
		},
		{
			name:     "missing id",
			workflow: &models.Workflow{Nodes: []*models.WorkflowNode{{ID: "a", Type: models.NodeTypeTask}}},
			wantErr:  "missing id",
		},
		{
			name: "unknown child",
			workflow: &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
				{ID: "start", Type: models.NodeTypeStart, Children: []string{"ghost"}},
			}},
			wantErr: "unknown child ghost",
		},
		{
			name: "duplicated node",
			workflow: &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
				{ID: "a", Type: models.NodeTypeTask},
				{ID: "a", Type: models.NodeTypeTask},
			}},
			wantErr: "duplicated node a",
		},
		{
			name: "bad type",
			workflow: &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
				{ID: "a", Type: "SCRIPT"},
			}},
			wantErr: "unknown type",
		},
		{
			name: "pure cycle without start has no root",
			workflow: &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
				{ID: "a", Type: models.NodeTypeTask, Children: []string{"b"}},
				{ID: "b", Type: models.NodeTypeTask, Children: []string{"a"}},
			}},
			wantErr: "no root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.workflow.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, models.ErrInvalidWorkflow)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkflow_RootNodes(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{ID: "wf", Nodes: []*models.WorkflowNode{
		{ID: "a", Type: models.NodeTypeTask, Children: []string{"b"}},
		{ID: "b", Type: models.NodeTypeTask},
	}}

	roots := workflow.RootNodes()
	require.Len(t, roots, 1)
	assert.Equal(t, "a", roots[0].ID)

	workflow.Nodes = append(workflow.Nodes, &models.WorkflowNode{ID: "s", Type: models.NodeTypeStart, Children: []string{"a"}})
	roots = workflow.RootNodes()
	require.Len(t, roots, 1)
	assert.Equal(t, "s", roots[0].ID)

	workflow.Roots = []string{"b"}
	roots = workflow.RootNodes()
	require.Len(t, roots, 1)
	assert.Equal(t, "b", roots[0].ID)
}

func TestWorkflowExecution_Replace(t *testing.T) {
	t.Parallel()

	node := &models.WorkflowNode{ID: "task", Type: models.NodeTypeTask}
	parent := models.NewWorkflowNodeExecution(&models.WorkflowNode{ID: "start", Type: models.NodeTypeStart}, nil)
	stale := models.NewWorkflowNodeExecution(node, nil)
	parent.Children = append(parent.Children, stale.ID)

	execution := models.NewWorkflowExecution("wf")
	execution.Add(parent)
	execution.Add(stale)

	fresh := models.NewWorkflowNodeExecution(node, nil)
	require.True(t, execution.Replace(stale.ID, fresh))

	assert.Len(t, execution.NodeExecutions, 2)
	assert.Equal(t, []string{fresh.ID}, parent.Children)
	assert.Equal(t, []*models.WorkflowNodeExecution{fresh}, execution.NodeExecutionsFor("task"))

	execution.Remove(fresh.ID)
	assert.Empty(t, parent.Children)
	assert.Len(t, execution.NodeExecutions, 1)
}
