package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearGraph() *Graph {
	return &Graph{
		Nodes: []*Node{
			{ID: "a", Type: "log", Name: "A", Enabled: true},
			{ID: "b", Type: "log", Name: "B", Enabled: true},
			{ID: "c", Type: "log", Name: "C", Enabled: true},
		},
		Edges: []*Edge{
			{ID: "e1", SourceNodeID: "a", SourcePort: PortMain, TargetNodeID: "b"},
			{ID: "e2", SourceNodeID: "b", SourcePort: PortMain, TargetNodeID: "c"},
		},
	}
}

func TestGraph_ComputeExecutionOrder(t *testing.T) {
	order, err := linearGraph().ComputeExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestGraph_ComputeExecutionOrder_Branching(t *testing.T) {
	graph := &Graph{
		Nodes: []*Node{
			{ID: "check", Type: "condition", Name: "Check", Enabled: true},
			{ID: "yes", Type: "log", Name: "Yes", Enabled: true},
			{ID: "no", Type: "log", Name: "No", Enabled: true},
		},
		Edges: []*Edge{
			{ID: "e1", SourceNodeID: "check", SourcePort: PortTrue, TargetNodeID: "yes"},
			{ID: "e2", SourceNodeID: "check", SourcePort: PortFalse, TargetNodeID: "no"},
		},
	}

	order, err := graph.ComputeExecutionOrder()
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "check", order[0])
}

func TestGraph_ComputeExecutionOrder_Cycle(t *testing.T) {
	graph := linearGraph()
	graph.Edges = append(graph.Edges, &Edge{
		ID: "e3", SourceNodeID: "c", SourcePort: PortMain, TargetNodeID: "a",
	})

	_, err := graph.ComputeExecutionOrder()
	assert.ErrorIs(t, err, ErrGraphCycle)
}

func TestGraph_ComputeExecutionOrder_DanglingEdge(t *testing.T) {
	graph := linearGraph()
	graph.Edges = append(graph.Edges, &Edge{
		ID: "e3", SourceNodeID: "c", SourcePort: PortMain, TargetNodeID: "ghost",
	})

	_, err := graph.ComputeExecutionOrder()
	assert.Error(t, err)
}

func TestGraph_Validate(t *testing.T) {
	assert.NoError(t, linearGraph().Validate())
}

func TestGraph_Validate_DuplicateNodeID(t *testing.T) {
	graph := linearGraph()
	graph.Nodes = append(graph.Nodes, &Node{ID: "a", Type: "log", Name: "Dup", Enabled: true})

	assert.Error(t, graph.Validate())
}

func TestGraph_Validate_EmptyGraph(t *testing.T) {
	graph := &Graph{}

	assert.NoError(t, graph.Validate())
}

func TestGraph_EntryNode(t *testing.T) {
	entry, err := linearGraph().EntryNode()
	require.NoError(t, err)
	assert.Equal(t, "a", entry.ID)
}

func TestGraph_EntryNode_PrefersExecutionOrder(t *testing.T) {
	graph := linearGraph()
	graph.ExecutionOrder = []string{"a", "b", "c"}

	entry, err := graph.EntryNode()
	require.NoError(t, err)
	assert.Equal(t, "a", entry.ID)
}

func TestGraph_EdgeFrom(t *testing.T) {
	graph := linearGraph()

	edge := graph.EdgeFrom("a", PortMain)
	require.NotNil(t, edge)
	assert.Equal(t, "b", edge.TargetNodeID)

	assert.Nil(t, graph.EdgeFrom("a", PortTrue))
	assert.Nil(t, graph.EdgeFrom("c", PortMain))
	assert.True(t, graph.HasEdgeFrom("b", PortMain))
	assert.False(t, graph.HasEdgeFrom("c", PortMain))
}

func TestGraph_FindNode(t *testing.T) {
	graph := linearGraph()

	node := graph.FindNode("b")
	require.NotNil(t, node)
	assert.Equal(t, "B", node.Name)

	assert.Nil(t, graph.FindNode("missing"))
}
