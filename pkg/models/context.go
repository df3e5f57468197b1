package models

// Decision records which declared children of a DECISION node are eligible.
type Decision struct {
	DecisionNode string          `json:"decision_node"`
	OptionNodes  map[string]bool `json:"option_nodes"`
}

// GraphNode is one ancestry record: a node, its state and the nodes it was reached from.
type GraphNode struct {
	Node    string    `json:"node"`
	State   NodeState `json:"state"`
	Parents []string  `json:"parents,omitempty"`
}

// ExecutionContext is the data bag threaded through node executions.
type ExecutionContext struct {
	Data       map[string]any `json:"data"`
	Decisions  []Decision     `json:"decisions,omitempty"`
	GraphNodes []GraphNode    `json:"graph_nodes,omitempty"`
}

func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		Data:       make(map[string]any),
		Decisions:  make([]Decision, 0),
		GraphNodes: make([]GraphNode, 0),
	}
}

// Clone returns a copy that shares no maps or slices with c.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return NewExecutionContext()
	}

	clone := &ExecutionContext{
		Data:       copyMap(c.Data),
		Decisions:  make([]Decision, 0, len(c.Decisions)),
		GraphNodes: make([]GraphNode, 0, len(c.GraphNodes)),
	}

	for _, decision := range c.Decisions {
		options := make(map[string]bool, len(decision.OptionNodes))
		for key, value := range decision.OptionNodes {
			options[key] = value
		}

		clone.Decisions = append(clone.Decisions, Decision{DecisionNode: decision.DecisionNode, OptionNodes: options})
	}

	for _, record := range c.GraphNodes {
		clone.GraphNodes = append(clone.GraphNodes, GraphNode{
			Node:    record.Node,
			State:   record.State,
			Parents: append([]string(nil), record.Parents...),
		})
	}

	return clone
}

// LastDecisionFor returns the most recent decision produced by nodeID.
func (c *ExecutionContext) LastDecisionFor(nodeID string) (Decision, bool) {
	if c == nil {
		return Decision{}, false
	}

	for i := len(c.Decisions) - 1; i >= 0; i-- {
		if c.Decisions[i].DecisionNode == nodeID {
			return c.Decisions[i], true
		}
	}

	return Decision{}, false
}

func (c *ExecutionContext) AppendDecision(decision Decision) {
	c.Decisions = append(c.Decisions, decision)
}

// Set stores a value in the context data.
func (c *ExecutionContext) Set(key string, value any) {
	if c.Data == nil {
		c.Data = make(map[string]any)
	}

	c.Data[key] = value
}

// DeriveFor builds the context of childID reached from parentID. Data and decisions are
// copied and the ancestry gains the child to parent edge. A child already present in the
// ancestry (loops) gets the parent added to its record instead of a new record, and the
// record moves to the end so the last record always names the current node.
func (c *ExecutionContext) DeriveFor(childID, parentID string) *ExecutionContext {
	derived := c.Clone()

	parentSeen := false

	for i := range derived.GraphNodes {
		if derived.GraphNodes[i].Node == parentID {
			derived.GraphNodes[i].State = NodeStateDone
			parentSeen = true
		}
	}

	if !parentSeen && parentID != "" {
		derived.GraphNodes = append(derived.GraphNodes, GraphNode{Node: parentID, State: NodeStateDone})
	}

	index := -1

	for i := len(derived.GraphNodes) - 1; i >= 0; i-- {
		if derived.GraphNodes[i].Node == childID {
			index = i

			break
		}
	}

	if index < 0 {
		record := GraphNode{Node: childID, State: NodeStateIdle}
		if parentID != "" {
			record.Parents = []string{parentID}
		}

		derived.GraphNodes = append(derived.GraphNodes, record)

		return derived
	}

	record := derived.GraphNodes[index]
	record.State = NodeStateIdle

	if parentID != "" && !contains(record.Parents, parentID) {
		record.Parents = append(record.Parents, parentID)
	}

	derived.GraphNodes = append(derived.GraphNodes[:index], derived.GraphNodes[index+1:]...)
	derived.GraphNodes = append(derived.GraphNodes, record)

	return derived
}

// Graph inflates the ancestry records.
func (c *ExecutionContext) Graph() *Graph {
	if c == nil {
		return InflateGraph(nil)
	}

	return InflateGraph(c.GraphNodes)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))

	for key, value := range src {
		dst[key] = copyValue(value)
	}

	return dst
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}

		return out
	default:
		return v
	}
}
