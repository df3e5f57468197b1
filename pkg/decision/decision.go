// Package decision picks which children of a finished node run next.
package decision

import (
	"github.com/dukex/orchestra/pkg/models"
)

// DetermineNextNodes returns the declared children of the node, filtered by the last
// decision recorded for it when the node is a DECISION. A DECISION without a recorded
// decision selects nothing.
func DetermineNextNodes(workflow *models.Workflow, nodeExecution *models.WorkflowNodeExecution) []*models.WorkflowNode {
	node := nodeExecution.Node
	if node == nil {
		found, ok := workflow.Node(nodeExecution.WorkflowNodeID)
		if !ok {
			return nil
		}

		node = found
	}

	children := workflow.ChildrenOf(node)
	if node.Type != models.NodeTypeDecision {
		return children
	}

	decision, ok := nodeExecution.StageContext.LastDecisionFor(node.ID)
	if !ok {
		return nil
	}

	selected := make([]*models.WorkflowNode, 0, len(children))
	for _, child := range children {
		if decision.OptionNodes[child.ID] {
			selected = append(selected, child)
		}
	}

	return selected
}
