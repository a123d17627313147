// Package readiness decides whether a graph may be submitted to the Model
// Builder service.
package readiness

import (
	"slices"

	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/overlay"
)

// Report breaks the build gate down into its conditions.
type Report struct {
	HasInput   bool `json:"has_input"`
	HasOutput  bool `json:"has_output"`
	Reachable  bool `json:"reachable"`
	Compatible bool `json:"compatible"`

	// Cycle lists the node IDs of one directed cycle, in edge order.
	// It is advisory and does not affect Ready.
	Cycle []string `json:"cycle,omitempty"`
}

// Ready is the single boolean gate consumed by the submission control.
func (r Report) Ready() bool {
	return r.HasInput && r.HasOutput && r.Reachable && r.Compatible
}

// CanBuild reports whether the output layer is reachable from the input
// layer and every entry of m is compatible. An empty map is vacuously
// compatible.
func CanBuild(nodes []graph.Node, edges []graph.Edge, m overlay.Map) bool {
	return Evaluate(nodes, edges, m).Ready()
}

// Evaluate computes every readiness condition for the given graph.
func Evaluate(nodes []graph.Node, edges []graph.Edge, m overlay.Map) Report {
	var r Report
	for _, n := range nodes {
		switch n.ID {
		case graph.InputID:
			r.HasInput = true
		case graph.OutputID:
			r.HasOutput = true
		}
	}
	if r.HasInput && r.HasOutput {
		r.Reachable = Reachable(nodes, edges, graph.InputID, graph.OutputID)
	}
	r.Compatible = AllCompatible(m)
	r.Cycle = FindCycle(nodes, edges)
	return r
}

// AllCompatible reports whether every verdict in m is an explicit true.
func AllCompatible(m overlay.Map) bool {
	for _, res := range m {
		if !res.IsCompatible() {
			return false
		}
	}
	return true
}

// Reachable runs a breadth-first search from one node to another over the
// directed edges. Edges touching nodes that are not present are ignored.
func Reachable(nodes []graph.Node, edges []graph.Edge, from, to string) bool {
	adj := adjacency(nodes, edges)
	if _, ok := adj[from]; !ok {
		return false
	}

	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == to {
			return true
		}
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Visitation states of FindCycle's depth-first search.
const (
	white = iota
	gray
	black
)

// FindCycle returns the node IDs of one directed cycle, or nil when the graph
// is acyclic. Start nodes are tried in node order.
func FindCycle(nodes []graph.Node, edges []graph.Edge) []string {
	adj := adjacency(nodes, edges)
	state := make(map[string]int, len(nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = gray
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case gray:
				start := slices.Index(stack, next)
				return slices.Clone(stack[start:])
			case white:
				if c := visit(next); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = black
		return nil
	}

	for _, n := range nodes {
		if state[n.ID] != white {
			continue
		}
		if c := visit(n.ID); c != nil {
			return c
		}
	}
	return nil
}

// adjacency maps each present node to its present successors in edge order.
func adjacency(nodes []graph.Node, edges []graph.Edge) map[string][]string {
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		adj[n.ID] = nil
	}
	for _, e := range edges {
		if _, ok := adj[e.Source]; !ok {
			continue
		}
		if _, ok := adj[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}
