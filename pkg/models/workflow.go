// Package models defines the workflow definitions and execution records the orchestrator works on.
package models

import (
	"errors"
	"fmt"
	"time"
)

type NodeType string

const (
	NodeTypeStart    NodeType = "START"
	NodeTypeTask     NodeType = "TASK"
	NodeTypeDecision NodeType = "DECISION"
	NodeTypeWait     NodeType = "WAIT"
	NodeTypeEnd      NodeType = "END"
)

var ErrInvalidWorkflow = errors.New("invalid workflow")

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeTask, NodeTypeDecision, NodeTypeWait, NodeTypeEnd:
		return true
	default:
		return false
	}
}

// WorkflowNode is one node of the static workflow graph. Children are referenced by id
// so cyclic graphs can be serialized.
type WorkflowNode struct {
	ID        string         `json:"id" yaml:"id" validate:"required"`
	Type      NodeType       `json:"type" yaml:"type" validate:"required,oneof=START TASK DECISION WAIT END"`
	Component string         `json:"component,omitempty" yaml:"component,omitempty"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Children  []string       `json:"children,omitempty" yaml:"children,omitempty"`
}

type Workflow struct {
	ID          string          `json:"id" yaml:"id" validate:"required"`
	Domain      string          `json:"domain" yaml:"domain"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Roots       []string        `json:"roots,omitempty" yaml:"roots,omitempty"`
	Nodes       []*WorkflowNode `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	CreatedAt   time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"-"`
}

func (w *Workflow) Node(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// ChildrenOf resolves the declared children of node, skipping ids that are not part of the workflow.
func (w *Workflow) ChildrenOf(node *WorkflowNode) []*WorkflowNode {
	children := make([]*WorkflowNode, 0, len(node.Children))

	for _, id := range node.Children {
		if child, ok := w.Node(id); ok {
			children = append(children, child)
		}
	}

	return children
}

// RootNodes returns the declared roots. Without declared roots every START node is a root,
// and without START nodes every node that nobody points at.
func (w *Workflow) RootNodes() []*WorkflowNode {
	if len(w.Roots) > 0 {
		roots := make([]*WorkflowNode, 0, len(w.Roots))

		for _, id := range w.Roots {
			if node, ok := w.Node(id); ok {
				roots = append(roots, node)
			}
		}

		return roots
	}

	roots := make([]*WorkflowNode, 0)

	for _, node := range w.Nodes {
		if node.Type == NodeTypeStart {
			roots = append(roots, node)
		}
	}

	if len(roots) > 0 {
		return roots
	}

	referenced := make(map[string]bool)

	for _, node := range w.Nodes {
		for _, child := range node.Children {
			referenced[child] = true
		}
	}

	for _, node := range w.Nodes {
		if !referenced[node.ID] {
			roots = append(roots, node)
		}
	}

	return roots
}

// Validate checks the structural integrity of the graph.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidWorkflow)
	}

	if len(w.Nodes) == 0 {
		return fmt.Errorf("%w: workflow %s has no nodes", ErrInvalidWorkflow, w.ID)
	}

	seen := make(map[string]bool, len(w.Nodes))

	for _, node := range w.Nodes {
		if node == nil || node.ID == "" {
			return fmt.Errorf("%w: node without id", ErrInvalidWorkflow)
		}

		if seen[node.ID] {
			return fmt.Errorf("%w: duplicated node %s", ErrInvalidWorkflow, node.ID)
		}

		if !node.Type.Valid() {
			return fmt.Errorf("%w: node %s has unknown type %q", ErrInvalidWorkflow, node.ID, node.Type)
		}

		seen[node.ID] = true
	}

	for _, node := range w.Nodes {
		for _, child := range node.Children {
			if !seen[child] {
				return fmt.Errorf("%w: node %s points to unknown child %s", ErrInvalidWorkflow, node.ID, child)
			}
		}
	}

	for _, root := range w.Roots {
		if !seen[root] {
			return fmt.Errorf("%w: unknown root %s", ErrInvalidWorkflow, root)
		}
	}

	if len(w.RootNodes()) == 0 {
		return fmt.Errorf("%w: workflow %s has no root", ErrInvalidWorkflow, w.ID)
	}

	return nil
}
