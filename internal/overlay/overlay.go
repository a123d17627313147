// Package overlay merges the externally computed Compatibility Map into a
// derived, read-only view of the graph.
package overlay

import "github.com/Benny93/dnnmodeler-go/internal/graph"

// EdgeResult is the Compatibility service's verdict for one edge.
type EdgeResult struct {
	// Compatible is nil when the service omitted the verdict.
	Compatible  *bool  `json:"compatible,omitempty"`
	OutputShape any    `json:"output_shape,omitempty"`
	Error       string `json:"error,omitempty"`
}

// IsCompatible reports an explicit true verdict.
func (r EdgeResult) IsCompatible() bool {
	return r.Compatible != nil && *r.Compatible
}

// IsIncompatible reports an explicit false verdict.
func (r EdgeResult) IsIncompatible() bool {
	return r.Compatible != nil && !*r.Compatible
}

// Map is keyed by Key(source, target).
type Map map[string]EdgeResult

// Key returns the Compatibility Map key of an edge.
func Key(source, target string) string {
	return source + "->" + target
}

// Lookup returns the verdict for e, if any.
func (m Map) Lookup(e graph.Edge) (EdgeResult, bool) {
	r, ok := m[Key(e.Source, e.Target)]
	return r, ok
}

// EdgeAnnotation is the derived display state of one edge.
type EdgeAnnotation struct {
	Incompatible bool   `json:"incompatible"`
	Error        string `json:"error,omitempty"`
}

// NodeAnnotation is the derived display state of one node.
type NodeAnnotation struct {
	OutputShape any    `json:"output_shape,omitempty"`
	Error       string `json:"error,omitempty"`
}

// View holds the annotations keyed by node and edge ID. Nodes and edges
// without a verdict are absent.
type View struct {
	Nodes map[string]NodeAnnotation `json:"nodes"`
	Edges map[string]EdgeAnnotation `json:"edges"`
}

// Node returns the annotation of a node; the zero value when there is none.
func (v View) Node(id string) NodeAnnotation {
	return v.Nodes[id]
}

// Edge returns the annotation of an edge; the zero value when there is none.
func (v View) Edge(id string) EdgeAnnotation {
	return v.Edges[id]
}

// Annotate derives the view of nodes and edges under m. A nil or empty map
// yields an empty view.
//
// A node takes its output shape from compatible incoming edges that report
// one, and its error from any incoming edge that reports one. When several
// edges qualify, the last in edge order wins. Annotate reads its inputs only.
func Annotate(nodes []graph.Node, edges []graph.Edge, m Map) View {
	v := View{
		Nodes: make(map[string]NodeAnnotation),
		Edges: make(map[string]EdgeAnnotation),
	}
	if len(m) == 0 {
		return v
	}

	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	for _, e := range edges {
		r, ok := m.Lookup(e)
		if !ok {
			continue
		}
		v.Edges[e.ID] = EdgeAnnotation{Incompatible: r.IsIncompatible(), Error: r.Error}

		if !present[e.Target] {
			continue
		}
		na, touched := v.Nodes[e.Target]
		if r.IsCompatible() && r.OutputShape != nil {
			na.OutputShape = r.OutputShape
			touched = true
		}
		if r.Error != "" {
			na.Error = r.Error
			touched = true
		}
		if touched {
			v.Nodes[e.Target] = na
		}
	}
	return v
}
