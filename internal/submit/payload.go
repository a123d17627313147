// Package submit assembles the wire payload sent to the Model Builder
// service and interprets its reply.
package submit

import (
	"errors"
	"strings"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/params"
)

// ErrMissingInputShape rejects a submission whose input layer has no shape.
var ErrMissingInputShape = errors.New("Define Input layer") //nolint:staticcheck

// Resolver resolves a block node's parameters against the catalog.
// *catalog.Cache implements it.
type Resolver interface {
	ResolveBlockParameters(blockType, name string, user map[string]any) map[string]any
}

var _ Resolver = (*catalog.Cache)(nil)

// ResolvedNode is a node as the remote services see it: identity, type and
// fully coerced parameters.
type ResolvedNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// PayloadEdge is an edge reduced to its endpoints.
type PayloadEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Payload is the body of a build request.
type Payload struct {
	Input  ResolvedNode   `json:"input"`
	Output ResolvedNode   `json:"output"`
	Nodes  []ResolvedNode `json:"nodes"`
	Edges  []PayloadEdge  `json:"edges"`
}

// ResolveNode resolves one node. Input and output layers have no catalog
// entry, so their own parameters are coerced without defaults.
func ResolveNode(n graph.Node, r Resolver) ResolvedNode {
	switch n.Kind {
	case graph.KindInput, graph.KindOutput:
		return ResolvedNode{
			ID:         n.ID,
			Type:       string(n.Kind),
			Name:       n.Label,
			Parameters: params.CoerceAll(n.Parameters),
		}
	default:
		var resolved map[string]any
		if r != nil {
			resolved = r.ResolveBlockParameters(n.BlockType, n.Label, n.Parameters)
		} else {
			resolved = catalog.Resolve(nil, n.Parameters)
		}
		return ResolvedNode{
			ID:         n.ID,
			Type:       n.BlockType,
			Name:       n.Label,
			Parameters: resolved,
		}
	}
}

// ResolveNodes resolves every node in order.
func ResolveNodes(nodes []graph.Node, r Resolver) []ResolvedNode {
	out := make([]ResolvedNode, len(nodes))
	for i, n := range nodes {
		out[i] = ResolveNode(n, r)
	}
	return out
}

// BuildPayload serializes the graph for the Model Builder service.
//
// It fails with ErrMissingInputShape when the input layer is missing or its
// shape is empty. Edge IDs, selection and overlay annotations are never
// included.
func BuildPayload(nodes []graph.Node, edges []graph.Edge, r Resolver) (Payload, error) {
	var input, output *graph.Node
	for i := range nodes {
		switch nodes[i].Kind {
		case graph.KindInput:
			input = &nodes[i]
		case graph.KindOutput:
			output = &nodes[i]
		}
	}
	if input == nil || shapeEmpty(input.Parameters[graph.ShapeParam]) {
		return Payload{}, ErrMissingInputShape
	}

	p := Payload{
		Input: ResolveNode(*input, r),
		Nodes: ResolveNodes(nodes, r),
		Edges: make([]PayloadEdge, len(edges)),
	}
	if output != nil {
		p.Output = ResolveNode(*output, r)
	}
	for i, e := range edges {
		p.Edges[i] = PayloadEdge{Source: e.Source, Target: e.Target}
	}
	return p, nil
}

func shapeEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
