// Package catalog holds the block definitions offered by the remote Block
// Catalog service and resolves a node's effective parameters against them.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParamSpec describes one parameter of a block.
type ParamSpec struct {
	// Default is the value used when the user leaves the parameter empty.
	Default any `json:"default"`

	// Kind is the declared value kind, e.g. "int". Informational only.
	Kind string `json:"type,omitempty"`
}

// Schema maps parameter names to their specs.
//
// The catalog may send either an object of name -> {default, type} or a bare
// list of names; list entries default to the empty string.
type Schema map[string]ParamSpec

// UnmarshalJSON accepts both the object and the list form.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var specs map[string]ParamSpec
	if err := json.Unmarshal(data, &specs); err == nil {
		*s = specs
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("parameters must be an object or a list of names: %w", err)
	}

	out := make(Schema, len(names))
	for _, name := range names {
		out[name] = ParamSpec{Default: ""}
	}
	*s = out
	return nil
}

// Names returns the parameter names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns the initial parameter map for a new node: each parameter's
// default, or "" when it has none.
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s))
	for name, spec := range s {
		if spec.Default == nil {
			out[name] = ""
			continue
		}
		out[name] = spec.Default
	}
	return out
}

// BlockDefinition is a block type offered by the catalog.
type BlockDefinition struct {
	// Name is the display label, e.g. "Conv2d".
	Name string `json:"name"`

	// Type is the type tag, e.g. "convolution".
	Type string `json:"type"`

	// Parameters is the parameter schema.
	Parameters Schema `json:"parameters"`
}
