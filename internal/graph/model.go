// Package graph provides the editable network topology: the reserved input
// and output layers, the block nodes placed between them, and the directed
// edges connecting them.
package graph

import "maps"

// NodeKind tags the variant of a Node.
type NodeKind string

const (
	KindInput  NodeKind = "input"
	KindOutput NodeKind = "output"
	KindBlock  NodeKind = "block"
)

// Reserved node IDs. Both nodes exist for the lifetime of a Store.
const (
	InputID  = "input"
	OutputID = "output"
)

// ShapeParam is the parameter holding the tensor shape of the input and
// output layers.
const ShapeParam = "shape"

// Position is a canvas coordinate. It is presentation-only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a placed layer.
//
// Shared fields apply to every kind. BlockType is set only for KindBlock and
// Placeholder only for KindInput.
type Node struct {
	// ID is unique within a Store. InputID and OutputID are reserved.
	ID string `json:"id"`

	// Kind is the node variant.
	Kind NodeKind `json:"kind"`

	// Label is the display name; for blocks it is the catalog block name.
	Label string `json:"label"`

	// Position is the canvas location.
	Position Position `json:"position"`

	// Selected is the presentation selection state.
	Selected bool `json:"selected,omitempty"`

	// Parameters holds raw values exactly as entered.
	Parameters map[string]any `json:"parameters"`

	// BlockType is the catalog type tag of a block node.
	BlockType string `json:"block_type,omitempty"`

	// Placeholder is an input hint for the input layer's shape.
	Placeholder string `json:"placeholder,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Parameters = maps.Clone(n.Parameters)
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	return n
}

// Edge is a directed connection from Source's output to Target's input.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Selected bool   `json:"selected,omitempty"`
}

// EdgeID derives the deterministic ID of the edge between source and target.
func EdgeID(source, target string) string {
	return source + "-" + target
}

// IsReserved reports whether id is one of the sentinel layer IDs.
func IsReserved(id string) bool {
	return id == InputID || id == OutputID
}

func newInputNode() *Node {
	return &Node{
		ID:          InputID,
		Kind:        KindInput,
		Label:       "Input Layer",
		Position:    Position{X: 250, Y: 0},
		Parameters:  map[string]any{ShapeParam: ""},
		Placeholder: "e.g. 784 or (384,384,1)",
	}
}

func newOutputNode() *Node {
	return &Node{
		ID:         OutputID,
		Kind:       KindOutput,
		Label:      "Output Layer",
		Position:   Position{X: 250, Y: 400},
		Parameters: map[string]any{ShapeParam: ""},
	}
}
