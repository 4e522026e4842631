package models

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphCycle is returned when a workflow graph contains a cycle.
	ErrGraphCycle = errors.New("workflow graph contains a cycle")

	// ErrGraphNoEntry is returned when no node is reachable as an entry point.
	ErrGraphNoEntry = errors.New("workflow graph has no entry node")
)

// FindNode returns the node with the given id, or nil.
func (g *Graph) FindNode(nodeID string) *Node {
	for _, node := range g.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}

// EdgeFrom returns the outgoing edge of a node on the given port, or nil.
// Traversal always follows edges; ExecutionOrder is only a lookup hint.
func (g *Graph) EdgeFrom(nodeID, port string) *Edge {
	for _, edge := range g.Edges {
		if edge.SourceNodeID == nodeID && edge.SourcePort == port {
			return edge
		}
	}

	return nil
}

// HasEdgeFrom reports whether a node has any outgoing edge on the given port.
func (g *Graph) HasEdgeFrom(nodeID, port string) bool {
	return g.EdgeFrom(nodeID, port) != nil
}

// EntryNode returns the first node without incoming edges, preferring the
// precomputed execution order when available.
func (g *Graph) EntryNode() (*Node, error) {
	if len(g.ExecutionOrder) > 0 {
		if node := g.FindNode(g.ExecutionOrder[0]); node != nil {
			return node, nil
		}
	}

	incoming := make(map[string]int, len(g.Nodes))
	for _, edge := range g.Edges {
		incoming[edge.TargetNodeID]++
	}

	for _, node := range g.Nodes {
		if incoming[node.ID] == 0 {
			return node, nil
		}
	}

	return nil, ErrGraphNoEntry
}

// ComputeExecutionOrder returns a topological ordering of the graph's nodes
// using Kahn's algorithm. The result is cached on the definition at save
// time as a traversal hint; it is never the source of truth for branching.
func (g *Graph) ComputeExecutionOrder() ([]string, error) {
	incoming := make(map[string]int, len(g.Nodes))
	successors := make(map[string][]string, len(g.Nodes))

	for _, node := range g.Nodes {
		incoming[node.ID] = 0
	}

	for _, edge := range g.Edges {
		if _, ok := incoming[edge.TargetNodeID]; !ok {
			return nil, fmt.Errorf("edge %s references unknown node %s", edge.ID, edge.TargetNodeID)
		}

		if _, ok := incoming[edge.SourceNodeID]; !ok {
			return nil, fmt.Errorf("edge %s references unknown node %s", edge.ID, edge.SourceNodeID)
		}

		incoming[edge.TargetNodeID]++
		successors[edge.SourceNodeID] = append(successors[edge.SourceNodeID], edge.TargetNodeID)
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		if incoming[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(g.Nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range successors[current] {
			incoming[next]--
			if incoming[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrGraphCycle
	}

	return order, nil
}

// Validate checks the graph for structural problems: duplicate node ids,
// dangling edges, cycles, and a missing entry node.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %s", node.ID)
		}

		seen[node.ID] = true
	}

	if _, err := g.ComputeExecutionOrder(); err != nil {
		return err
	}

	if len(g.Nodes) > 0 {
		if _, err := g.EntryNode(); err != nil {
			return err
		}
	}

	return nil
}
