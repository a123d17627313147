// Package topology reads network topologies written in HCL and replays them
// onto a graph store as the editing gestures a user would perform.
//
//	input  { shape = "(1, 28, 28)" }
//	output { shape = "10" }
//
//	block "conv" {
//	  type   = "convolution"
//	  name   = "Conv2d"
//	  params = { out_channels = 16, kernel_size = "(3, 3)" }
//	}
//
//	connect {
//	  from = "input"
//	  to   = "conv"
//	}
package topology

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
)

// Extension is the file extension of topology files.
const Extension = ".hcl"

// File is a decoded topology file.
type File struct {
	Input    *Layer    `hcl:"input,block"`
	Output   *Layer    `hcl:"output,block"`
	Blocks   []Block   `hcl:"block,block"`
	Connects []Connect `hcl:"connect,block"`
}

// Layer sets the shape of the input or output layer.
type Layer struct {
	Shape string `hcl:"shape,optional"`
}

// Block places one catalog block. Label is the handle connect blocks use to
// refer to it.
type Block struct {
	Label  string         `hcl:"label,label"`
	Type   string         `hcl:"type,optional"`
	Name   string         `hcl:"name,optional"`
	Params hcl.Expression `hcl:"params,optional"`
}

// Connect draws an edge between two labels. "input" and "output" name the
// reserved layers.
type Connect struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// LoadFile parses and decodes a topology file.
func LoadFile(path string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing topology %s: %s", path, diags.Error())
	}
	return decode(f, path)
}

// Parse decodes a topology from source text. filename is used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing topology %s: %s", filename, diags.Error())
	}
	return decode(f, filename)
}

func decode(f *hcl.File, filename string) (*File, error) {
	var out File
	if diags := gohcl.DecodeBody(f.Body, nil, &out); diags.HasErrors() {
		return nil, fmt.Errorf("decoding topology %s: %s", filename, diags.Error())
	}
	return &out, nil
}

// BlockFinder resolves block references against the catalog.
// *catalog.Cache implements it.
type BlockFinder interface {
	Lookup(blockType, name string) (catalog.BlockDefinition, bool)
	Find(query string) (catalog.BlockDefinition, error)
}

var _ BlockFinder = (*catalog.Cache)(nil)

// Labels maps block labels to the node IDs allocated for them.
type Labels map[string]string

// Resolve maps a label to a node ID. Reserved IDs resolve to themselves.
func (l Labels) Resolve(label string) (string, bool) {
	if graph.IsReserved(label) {
		return label, true
	}
	id, ok := l[label]
	return id, ok
}

// Apply replays the file onto store: shapes first, then one AddBlockNode and
// its SetParameter calls per block, then Connect per connect block.
//
// A block whose type is not in the catalog is still placed, with an empty
// schema, so a file can be checked while the catalog is unavailable.
func (f *File) Apply(store *graph.Store, finder BlockFinder) (Labels, error) {
	if f.Input != nil {
		if err := store.SetParameter(graph.InputID, graph.ShapeParam, f.Input.Shape); err != nil {
			return nil, err
		}
	}
	if f.Output != nil {
		if err := store.SetParameter(graph.OutputID, graph.ShapeParam, f.Output.Shape); err != nil {
			return nil, err
		}
	}

	labels := make(Labels, len(f.Blocks))
	for _, b := range f.Blocks {
		if graph.IsReserved(b.Label) {
			return nil, fmt.Errorf("block %q: label is reserved", b.Label)
		}
		if _, dup := labels[b.Label]; dup {
			return nil, fmt.Errorf("block %q: duplicate label", b.Label)
		}

		def, err := findBlock(b, finder)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", b.Label, err)
		}
		values, err := paramValues(b.Params)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", b.Label, err)
		}

		n := store.AddBlockNode(def)
		labels[b.Label] = n.ID
		for _, name := range sortedKeys(values) {
			if err := store.SetParameter(n.ID, name, values[name]); err != nil {
				return nil, err
			}
		}
	}

	for _, c := range f.Connects {
		from, ok := labels.Resolve(c.From)
		if !ok {
			return nil, fmt.Errorf("connect %s -> %s: unknown label %q", c.From, c.To, c.From)
		}
		to, ok := labels.Resolve(c.To)
		if !ok {
			return nil, fmt.Errorf("connect %s -> %s: unknown label %q", c.From, c.To, c.To)
		}
		if _, err := store.Connect(from, to); err != nil {
			return nil, fmt.Errorf("connect %s -> %s: %w", c.From, c.To, err)
		}
	}
	return labels, nil
}

func findBlock(b Block, finder BlockFinder) (catalog.BlockDefinition, error) {
	switch {
	case b.Type != "":
		if finder != nil {
			if def, ok := finder.Lookup(b.Type, b.Name); ok {
				return def, nil
			}
		}
		name := b.Name
		if name == "" {
			name = b.Label
		}
		return catalog.BlockDefinition{Name: name, Type: b.Type}, nil
	case b.Name != "":
		if finder == nil {
			return catalog.BlockDefinition{}, fmt.Errorf("%w %q", catalog.ErrUnknownBlock, b.Name)
		}
		return finder.Find(b.Name)
	default:
		return catalog.BlockDefinition{}, errors.New("type or name is required")
	}
}

// Load parses path and replays it onto a fresh store.
func Load(path string, finder BlockFinder, opts ...graph.Option) (*graph.Store, Labels, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	store := graph.NewStore(opts...)
	labels, err := f.Apply(store, finder)
	if err != nil {
		return nil, nil, fmt.Errorf("applying topology %s: %w", path, err)
	}
	return store, labels, nil
}
