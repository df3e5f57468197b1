package decision_test

import (
	"testing"

	"github.com/dukex/orchestra/pkg/decision"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func ids(nodes []*models.WorkflowNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}

	return out
}

func TestDetermineNextNodes(t *testing.T) {
	workflow := testutil.ForkJoinWorkflow("wf", nil, nil)

	tests := []struct {
		name      string
		node      string
		decisions []models.Decision
		want      []string
	}{
		{
			name: "task follows declared children",
			node: "a",
			want: []string{"join"},
		},
		{
			name: "end has no children",
			node: "end",
			want: []string{},
		},
		{
			name: "decision without decision selects nothing",
			node: "fork",
			want: []string{},
		},
		{
			name: "decision selects true options",
			node: "fork",
			decisions: []models.Decision{
				{DecisionNode: "fork", OptionNodes: map[string]bool{"a": false, "b": true}},
			},
			want: []string{"b"},
		},
		{
			name: "last decision for the node wins",
			node: "fork",
			decisions: []models.Decision{
				{DecisionNode: "fork", OptionNodes: map[string]bool{"a": true, "b": true}},
				{DecisionNode: "other", OptionNodes: map[string]bool{"a": false}},
				{DecisionNode: "fork", OptionNodes: map[string]bool{"a": true, "b": false}},
			},
			want: []string{"a"},
		},
		{
			name: "decision of another node is ignored",
			node: "fork",
			decisions: []models.Decision{
				{DecisionNode: "other", OptionNodes: map[string]bool{"a": true}},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, _ := workflow.Node(tt.node)
			ctx := models.NewExecutionContext()
			ctx.Decisions = tt.decisions

			got := decision.DetermineNextNodes(workflow, models.NewWorkflowNodeExecution(node, ctx))
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestDetermineNextNodes_ValueBasedDecision(t *testing.T) {
	workflow := testutil.Workflow("wf",
		testutil.Node("d", models.NodeTypeDecision, testutil.WithChildren("X", "Y")),
		testutil.Node("X", models.NodeTypeEnd),
		testutil.Node("Y", models.NodeTypeEnd),
	)
	node, _ := workflow.Node("d")

	ctx := models.NewExecutionContext()
	ctx.AppendDecision(models.Decision{DecisionNode: "d", OptionNodes: map[string]bool{"X": true, "Y": false}})

	got := decision.DetermineNextNodes(workflow, models.NewWorkflowNodeExecution(node, ctx))
	assert.Equal(t, []string{"X"}, ids(got))
}
