// Package testutil provides workflow builders and shared containers for tests.
package testutil

import (
	"github.com/dukex/orchestra/pkg/models"
)

// Node creates a workflow node that can be tweaked with overrides.
func Node(id string, nodeType models.NodeType, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       id,
		Type:     nodeType,
		Config:   map[string]any{},
		Children: []string{},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithComponent sets the component key.
func WithComponent(key string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Component = key
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithChildren sets the declared children.
func WithChildren(ids ...string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Children = ids
	}
}

// Workflow assembles a workflow from nodes.
func Workflow(id string, nodes ...*models.WorkflowNode) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Domain: "test",
		Name:   "Workflow " + id,
		Nodes:  nodes,
	}
}

// LinearWorkflow is START -> TASK -> END.
func LinearWorkflow(id string) *models.Workflow {
	return Workflow(id,
		Node("start", models.NodeTypeStart, WithChildren("task")),
		Node("task", models.NodeTypeTask, WithChildren("end")),
		Node("end", models.NodeTypeEnd),
	)
}

// ForkJoinWorkflow is START -> fork -> (a, b) -> join -> END with an inclusive fork.
func ForkJoinWorkflow(id string, conditions map[string]any, joinConfig map[string]any) *models.Workflow {
	return Workflow(id,
		Node("start", models.NodeTypeStart, WithChildren("fork")),
		Node("fork", models.NodeTypeDecision,
			WithComponent("core:fork"),
			WithConfig(map[string]any{"conditions": conditions}),
			WithChildren("a", "b"),
		),
		Node("a", models.NodeTypeTask, WithChildren("join")),
		Node("b", models.NodeTypeTask, WithChildren("join")),
		Node("join", models.NodeTypeTask,
			WithComponent("core:join"),
			WithConfig(joinConfig),
			WithChildren("end"),
		),
		Node("end", models.NodeTypeEnd),
	)
}

// Execution creates an execution holding one node execution per node.
func Execution(workflow *models.Workflow, nodeIDs ...string) *models.WorkflowExecution {
	execution := models.NewWorkflowExecution(workflow.ID)

	for _, id := range nodeIDs {
		if node, ok := workflow.Node(id); ok {
			execution.Add(models.NewWorkflowNodeExecution(node, nil))
		}
	}

	return execution
}
