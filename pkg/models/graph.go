package models

// Vertex is an in-memory ancestry node with links in both directions.
type Vertex struct {
	ID       string
	State    NodeState
	Parents  []*Vertex
	Children []*Vertex
}

// Graph is the inflated form of a []GraphNode ancestry list.
type Graph struct {
	vertices map[string]*Vertex
	order    []string
	last     string
}

func NewGraph() *Graph {
	return &Graph{vertices: make(map[string]*Vertex)}
}

// InflateGraph builds the vertex graph of records. Records naming the same node are
// unified and their parents unioned.
func InflateGraph(records []GraphNode) *Graph {
	graph := NewGraph()

	for _, record := range records {
		vertex := graph.vertex(record.Node)
		if record.State != "" {
			vertex.State = record.State
		}

		for _, parent := range record.Parents {
			graph.Link(record.Node, parent)
		}

		graph.last = record.Node
	}

	return graph
}

func (g *Graph) vertex(id string) *Vertex {
	if vertex, ok := g.vertices[id]; ok {
		return vertex
	}

	vertex := &Vertex{ID: id, State: NodeStateIdle}
	g.vertices[id] = vertex
	g.order = append(g.order, id)

	return vertex
}

// Link adds the child to parent edge once.
func (g *Graph) Link(childID, parentID string) {
	child := g.vertex(childID)
	parent := g.vertex(parentID)

	for _, p := range child.Parents {
		if p == parent {
			return
		}
	}

	child.Parents = append(child.Parents, parent)
	parent.Children = append(parent.Children, child)
}

func (g *Graph) Vertex(id string) (*Vertex, bool) {
	vertex, ok := g.vertices[id]

	return vertex, ok
}

// Vertices returns every vertex in first-seen order.
func (g *Graph) Vertices() []*Vertex {
	vertices := make([]*Vertex, 0, len(g.order))
	for _, id := range g.order {
		vertices = append(vertices, g.vertices[id])
	}

	return vertices
}

func (g *Graph) Len() int {
	return len(g.order)
}

// Flatten emits one record per vertex with every parent edge exactly once. It walks
// from the vertices without parents towards their children and then sweeps whatever a
// cycle kept unreachable, so it terminates on any input.
func (g *Graph) Flatten() []GraphNode {
	records := make([]GraphNode, 0, len(g.order))
	visited := make(map[string]bool, len(g.order))

	var visit func(vertex *Vertex)

	visit = func(vertex *Vertex) {
		if visited[vertex.ID] {
			return
		}

		visited[vertex.ID] = true

		record := GraphNode{Node: vertex.ID, State: vertex.State}
		for _, parent := range vertex.Parents {
			record.Parents = append(record.Parents, parent.ID)
		}

		records = append(records, record)

		for _, child := range vertex.Children {
			visit(child)
		}
	}

	for _, id := range g.order {
		if vertex := g.vertices[id]; len(vertex.Parents) == 0 {
			visit(vertex)
		}
	}

	for _, id := range g.order {
		visit(g.vertices[id])
	}

	return records
}

// Leaves returns the vertices that are nobody's parent. On a pure cycle there are none, in
// which case the most recently recorded node is the leaf.
func (g *Graph) Leaves() []*Vertex {
	leaves := make([]*Vertex, 0)

	for _, id := range g.order {
		if vertex := g.vertices[id]; len(vertex.Children) == 0 {
			leaves = append(leaves, vertex)
		}
	}

	if len(leaves) == 0 && g.last != "" {
		leaves = append(leaves, g.vertices[g.last])
	}

	return leaves
}

// Ancestors returns ids and every node reachable upwards from them.
func (g *Graph) Ancestors(ids ...string) map[string]bool {
	seen := make(map[string]bool)
	stack := make([]*Vertex, 0, len(ids))

	for _, id := range ids {
		if vertex, ok := g.vertices[id]; ok {
			stack = append(stack, vertex)
		}
	}

	for len(stack) > 0 {
		vertex := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[vertex.ID] {
			continue
		}

		seen[vertex.ID] = true

		stack = append(stack, vertex.Parents...)
	}

	return seen
}

// Upstream returns every node reachable upwards from the leaves.
func (g *Graph) Upstream() map[string]bool {
	leaves := g.Leaves()

	ids := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		ids = append(ids, leaf.ID)
	}

	return g.Ancestors(ids...)
}
