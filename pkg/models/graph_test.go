package models_test

import (
	"sort"
	"testing"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edgesOf(records []models.GraphNode) []string {
	edges := make([]string, 0)

	for _, record := range records {
		for _, parent := range record.Parents {
			edges = append(edges, record.Node+"<-"+parent)
		}
	}

	sort.Strings(edges)

	return edges
}

func nodesOf(records []models.GraphNode) []string {
	nodes := make([]string, 0, len(records))
	for _, record := range records {
		nodes = append(nodes, record.Node)
	}

	sort.Strings(nodes)

	return nodes
}

func TestGraph_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []models.GraphNode
	}{
		{
			name: "linear",
			records: []models.GraphNode{
				{Node: "start", State: models.NodeStateDone},
				{Node: "task", State: models.NodeStateDone, Parents: []string{"start"}},
				{Node: "end", State: models.NodeStateIdle, Parents: []string{"task"}},
			},
		},
		{
			name: "diamond",
			records: []models.GraphNode{
				{Node: "fork", State: models.NodeStateDone},
				{Node: "a", State: models.NodeStateDone, Parents: []string{"fork"}},
				{Node: "b", State: models.NodeStateDone, Parents: []string{"fork"}},
				{Node: "join", State: models.NodeStateIdle, Parents: []string{"a", "b"}},
			},
		},
		{
			name: "cycle",
			records: []models.GraphNode{
				{Node: "poll", State: models.NodeStateDone, Parents: []string{"handle"}},
				{Node: "handle", State: models.NodeStateDone, Parents: []string{"poll"}},
			},
		},
		{
			name: "self loop",
			records: []models.GraphNode{
				{Node: "retry", State: models.NodeStateDone, Parents: []string{"retry"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flattened := models.InflateGraph(tt.records).Flatten()

			assert.Equal(t, nodesOf(tt.records), nodesOf(flattened))
			assert.Equal(t, edgesOf(tt.records), edgesOf(flattened))

			again := models.InflateGraph(flattened).Flatten()
			assert.Equal(t, edgesOf(flattened), edgesOf(again))
		})
	}
}

func TestGraph_InflateUnifiesDuplicates(t *testing.T) {
	t.Parallel()

	graph := models.InflateGraph([]models.GraphNode{
		{Node: "join", Parents: []string{"a"}},
		{Node: "join", Parents: []string{"b", "a"}},
	})

	require.Equal(t, 3, graph.Len())

	join, ok := graph.Vertex("join")
	require.True(t, ok)
	assert.Len(t, join.Parents, 2)

	assert.Equal(t, []string{"join<-a", "join<-b"}, edgesOf(graph.Flatten()))
}

func TestGraph_Ancestors(t *testing.T) {
	t.Parallel()

	graph := models.InflateGraph([]models.GraphNode{
		{Node: "start"},
		{Node: "fork", Parents: []string{"start"}},
		{Node: "a", Parents: []string{"fork"}},
		{Node: "join", Parents: []string{"a"}},
	})

	leaves := graph.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "join", leaves[0].ID)

	upstream := graph.Upstream()
	assert.True(t, upstream["a"])
	assert.True(t, upstream["start"])
	assert.False(t, upstream["b"])
}

func TestGraph_LeavesOnPureCycle(t *testing.T) {
	t.Parallel()

	graph := models.InflateGraph([]models.GraphNode{
		{Node: "a", Parents: []string{"b"}},
		{Node: "b", Parents: []string{"a"}},
	})

	leaves := graph.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "b", leaves[0].ID)
	assert.Len(t, graph.Upstream(), 2)
}
