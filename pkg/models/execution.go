package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "PENDING"
	ExecutionStatusInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionStatusSuccess    ExecutionStatus = "SUCCESS"
	ExecutionStatusError      ExecutionStatus = "ERROR"
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

type NodeState string

const (
	NodeStateIdle    NodeState = "IDLE"
	NodeStateWorking NodeState = "WORKING"
	NodeStateWaiting NodeState = "WAITING"
	NodeStateDone    NodeState = "DONE"
	NodeStateFailed  NodeState = "FAILED"
)

func (s NodeState) Terminal() bool {
	return s == NodeStateDone || s == NodeStateFailed
}

// Phase tells which request the orchestrator last issued for a node execution.
type Phase string

const (
	PhaseNone       Phase = ""
	PhaseActivation Phase = "ACTIVATION"
	PhaseInvocation Phase = "INVOCATION"
)

// ErrorPayload is the serializable form of a component failure.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ErrorPayload) Error() string {
	return e.Kind + ": " + e.Message
}

// WorkflowNodeExecution is the runtime record of one node within one execution.
// Children holds the ids of the realised children inside the owning execution.
type WorkflowNodeExecution struct {
	ID             string            `json:"id"`
	WorkflowNodeID string            `json:"workflow_node_id"`
	State          NodeState         `json:"state"`
	Phase          Phase             `json:"phase,omitempty"`
	Node           *WorkflowNode     `json:"node"`
	StageContext   *ExecutionContext `json:"stage_context"`
	Children       []string          `json:"children,omitempty"`
	Error          *ErrorPayload     `json:"error,omitempty"`
	LastEventID    string            `json:"last_event_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func NewWorkflowNodeExecution(node *WorkflowNode, stageContext *ExecutionContext) *WorkflowNodeExecution {
	if stageContext == nil {
		stageContext = NewExecutionContext()
	}

	now := time.Now().UTC()

	return &WorkflowNodeExecution{
		ID:             uuid.NewString(),
		WorkflowNodeID: node.ID,
		State:          NodeStateIdle,
		Node:           node,
		StageContext:   stageContext,
		Children:       make([]string, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (n *WorkflowNodeExecution) Type() NodeType {
	if n.Node == nil {
		return NodeTypeTask
	}

	return n.Node.Type
}

func (n *WorkflowNodeExecution) Transition(state NodeState) {
	n.State = state
	n.UpdatedAt = time.Now().UTC()
}

type WorkflowExecution struct {
	ID                string                   `json:"id"`
	WorkflowID        string                   `json:"workflow_id"`
	ParentExecutionID string                   `json:"parent_execution_id,omitempty"`
	Status            ExecutionStatus          `json:"status"`
	NodeExecutions    []*WorkflowNodeExecution `json:"node_executions"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func NewWorkflowExecution(workflowID string) *WorkflowExecution {
	now := time.Now().UTC()

	return &WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		Status:         ExecutionStatusPending,
		NodeExecutions: make([]*WorkflowNodeExecution, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (e *WorkflowExecution) NodeExecution(id string) (*WorkflowNodeExecution, bool) {
	for _, nodeExecution := range e.NodeExecutions {
		if nodeExecution.ID == id {
			return nodeExecution, true
		}
	}

	return nil, false
}

// NodeExecutionsFor returns every record instantiated from the workflow node.
func (e *WorkflowExecution) NodeExecutionsFor(workflowNodeID string) []*WorkflowNodeExecution {
	found := make([]*WorkflowNodeExecution, 0)

	for _, nodeExecution := range e.NodeExecutions {
		if nodeExecution.WorkflowNodeID == workflowNodeID {
			found = append(found, nodeExecution)
		}
	}

	return found
}

func (e *WorkflowExecution) ChildrenOf(nodeExecution *WorkflowNodeExecution) []*WorkflowNodeExecution {
	children := make([]*WorkflowNodeExecution, 0, len(nodeExecution.Children))

	for _, id := range nodeExecution.Children {
		if child, ok := e.NodeExecution(id); ok {
			children = append(children, child)
		}
	}

	return children
}

func (e *WorkflowExecution) Add(nodeExecution *WorkflowNodeExecution) {
	e.NodeExecutions = append(e.NodeExecutions, nodeExecution)
}

// Replace swaps the record staleID for nodeExecution in place and repoints children lists.
func (e *WorkflowExecution) Replace(staleID string, nodeExecution *WorkflowNodeExecution) bool {
	replaced := false

	for i, existing := range e.NodeExecutions {
		if existing.ID == staleID {
			e.NodeExecutions[i] = nodeExecution
			replaced = true

			break
		}
	}

	if !replaced {
		return false
	}

	for _, existing := range e.NodeExecutions {
		for i, child := range existing.Children {
			if child == staleID {
				existing.Children[i] = nodeExecution.ID
			}
		}
	}

	return true
}

// Remove drops the record and every reference to it.
func (e *WorkflowExecution) Remove(id string) {
	kept := e.NodeExecutions[:0]

	for _, existing := range e.NodeExecutions {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}

	e.NodeExecutions = kept

	for _, existing := range e.NodeExecutions {
		children := existing.Children[:0]

		for _, child := range existing.Children {
			if child != id {
				children = append(children, child)
			}
		}

		existing.Children = children
	}
}

// Progressed reports whether any node execution left its initial idle state.
func (e *WorkflowExecution) Progressed() bool {
	if e.Status != ExecutionStatusPending {
		return true
	}

	for _, nodeExecution := range e.NodeExecutions {
		if nodeExecution.State != NodeStateIdle {
			return true
		}
	}

	return false
}

func (e *WorkflowExecution) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
