package graph

import "fmt"

// ChangeType is the kind of a gesture-originated change.
type ChangeType string

const (
	ChangePosition ChangeType = "position"
	ChangeSelect   ChangeType = "select"
	ChangeRemove   ChangeType = "remove"
)

// NodeChange is one node delta produced by a drag, marquee or delete gesture.
type NodeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Position *Position  `json:"position,omitempty"`
	Selected bool       `json:"selected,omitempty"`
}

// EdgeChange is one edge delta produced by a selection or delete gesture.
type EdgeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Selected bool       `json:"selected,omitempty"`
}

// ChangeSet is a batch of deltas applied as a single mutation.
type ChangeSet struct {
	Nodes []NodeChange `json:"nodes,omitempty"`
	Edges []EdgeChange `json:"edges,omitempty"`
}

// ApplyChangeSet applies a batch of gesture deltas atomically.
//
// Changes naming unknown IDs are ignored. A node removal is a cascading
// DeleteNode, so a set that removes the input or output layer is rejected as
// a whole with ErrReservedNode and nothing is applied.
func (s *Store) ApplyChangeSet(cs ChangeSet) error {
	for _, c := range cs.Nodes {
		switch c.Type {
		case ChangePosition, ChangeSelect, ChangeRemove:
		default:
			return fmt.Errorf("node %q: unsupported change type %q", c.ID, c.Type)
		}
		if c.Type == ChangeRemove && IsReserved(c.ID) {
			return fmt.Errorf("removing %q: %w", c.ID, ErrReservedNode)
		}
	}
	for _, c := range cs.Edges {
		switch c.Type {
		case ChangeSelect, ChangeRemove:
		default:
			return fmt.Errorf("edge %q: unsupported change type %q", c.ID, c.Type)
		}
	}

	s.mu.Lock()
	structural := false

	for _, c := range cs.Nodes {
		n, ok := s.nodeIndex[c.ID]
		if !ok {
			continue
		}
		switch c.Type {
		case ChangePosition:
			if c.Position != nil {
				n.Position = *c.Position
			}
		case ChangeSelect:
			n.Selected = c.Selected
		case ChangeRemove:
			structural = s.removeNode(c.ID) || structural
		}
	}

	for _, c := range cs.Edges {
		e, ok := s.edgeIndex[c.ID]
		if !ok {
			continue
		}
		switch c.Type {
		case ChangeSelect:
			e.Selected = c.Selected
		case ChangeRemove:
			structural = s.removeEdge(c.ID) || structural
		}
	}

	var v uint64
	if structural {
		v = s.bump()
	}
	s.mu.Unlock()

	if structural {
		s.notify(v)
	}
	return nil
}

// Select applies a change set selecting exactly the named nodes and edges
// and deselecting everything else. The id "none" selects nothing.
func (s *Store) Select(ids ...string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "none" {
			want[id] = true
		}
	}

	snap := s.Snapshot()
	var cs ChangeSet
	for _, n := range snap.Nodes {
		cs.Nodes = append(cs.Nodes, NodeChange{Type: ChangeSelect, ID: n.ID, Selected: want[n.ID]})
	}
	for _, e := range snap.Edges {
		cs.Edges = append(cs.Edges, EdgeChange{Type: ChangeSelect, ID: e.ID, Selected: want[e.ID]})
	}
	return s.ApplyChangeSet(cs)
}
