package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

var (
	// ErrNodeNotFound is returned when an operation names a node that is not in the store.
	ErrNodeNotFound = errors.New("node not found")

	// ErrReservedNode is returned when deleting the input or output layer.
	ErrReservedNode = errors.New("input and output layers cannot be deleted")
)

// Placement region for new block nodes.
const (
	placementX      = 200
	placementY      = 100
	placementWidth  = 200
	placementHeight = 300
)

// Store owns the canonical node and edge collections.
//
// Every mutation is applied under the write lock, so readers never observe a
// partial change. Mutations that affect what the compatibility service sees
// (the node set, the edge set, parameters) advance Version and notify
// subscribers; presentation-only changes (position, selection) do not.
type Store struct {
	mu sync.RWMutex

	nodes     []*Node
	nodeIndex map[string]*Node
	edges     []*Edge
	edgeIndex map[string]*Edge

	version uint64
	random  func() float64

	subMu   sync.Mutex
	subs    map[int]chan uint64
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithRandom sets the source of the random placement offset for new blocks.
// fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(s *Store) {
		s.random = fn
	}
}

// NewStore creates a store holding only the input and output layers.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodeIndex: make(map[string]*Node),
		edgeIndex: make(map[string]*Edge),
		random:    rand.Float64,
		subs:      make(map[int]chan uint64),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.appendNode(newInputNode())
	s.appendNode(newOutputNode())
	return s
}

// Snapshot is a consistent copy of the store at one version.
type Snapshot struct {
	Version uint64
	Nodes   []Node
	Edges   []Edge
}

// Snapshot returns copies of all nodes and edges together with the version
// they belong to.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version: s.version,
		Nodes:   s.copyNodes(),
		Edges:   s.copyEdges(),
	}
}

// Version returns the current graph version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyNodes()
}

// Edges returns copies of all edges in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyEdges()
}

// Node returns a copy of the node with the given ID.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// AddBlockNode places a new block node for def and returns a copy of it.
//
// The node gets the next free numeric ID, the schema defaults as its
// parameters and a random position inside the placement region.
func (s *Store) AddBlockNode(def catalog.BlockDefinition) Node {
	s.mu.Lock()
	n := &Node{
		ID:        s.nextID(),
		Kind:      KindBlock,
		Label:     def.Name,
		BlockType: def.Type,
		Position: Position{
			X: placementX + s.random()*placementWidth,
			Y: placementY + s.random()*placementHeight,
		},
		Parameters: def.Parameters.Defaults(),
	}
	s.appendNode(n)
	v := s.bump()
	out := n.Clone()
	s.mu.Unlock()

	s.notify(v)
	return out
}

// DeleteNode removes a block node together with every edge it touches.
// It reports whether a node was removed. The input and output layers are
// rejected with ErrReservedNode.
func (s *Store) DeleteNode(id string) (bool, error) {
	if IsReserved(id) {
		return false, fmt.Errorf("deleting %q: %w", id, ErrReservedNode)
	}

	s.mu.Lock()
	if !s.removeNode(id) {
		s.mu.Unlock()
		return false, nil
	}
	v := s.bump()
	s.mu.Unlock()

	s.notify(v)
	return true, nil
}

// DeleteEdge removes the edge with the given ID and reports whether it existed.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()
	if !s.removeEdge(id) {
		s.mu.Unlock()
		return false
	}
	v := s.bump()
	s.mu.Unlock()

	s.notify(v)
	return true
}

// Connect adds an edge from source to target. Both nodes must exist.
//
// Edges are keyed by their endpoint pair: connecting a pair that is already
// connected returns the existing edge and changes nothing.
func (s *Store) Connect(source, target string) (Edge, error) {
	s.mu.Lock()
	if _, ok := s.nodeIndex[source]; !ok {
		s.mu.Unlock()
		return Edge{}, fmt.Errorf("connecting from %q: %w", source, ErrNodeNotFound)
	}
	if _, ok := s.nodeIndex[target]; !ok {
		s.mu.Unlock()
		return Edge{}, fmt.Errorf("connecting to %q: %w", target, ErrNodeNotFound)
	}

	id := EdgeID(source, target)
	if existing, ok := s.edgeIndex[id]; ok {
		out := *existing
		s.mu.Unlock()
		return out, nil
	}

	e := &Edge{ID: id, Source: source, Target: target}
	s.edges = append(s.edges, e)
	s.edgeIndex[id] = e
	v := s.bump()
	out := *e
	s.mu.Unlock()

	s.notify(v)
	return out, nil
}

// SetParameter stores a raw parameter value on a node without resolving it,
// so the editing surface can echo exactly what was typed.
func (s *Store) SetParameter(nodeID, name string, value any) error {
	s.mu.Lock()
	n, ok := s.nodeIndex[nodeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("setting %s on %q: %w", name, nodeID, ErrNodeNotFound)
	}
	if n.Parameters == nil {
		n.Parameters = make(map[string]any)
	}
	n.Parameters[name] = value
	v := s.bump()
	s.mu.Unlock()

	s.notify(v)
	return nil
}

// MoveNode sets a node's canvas position.
func (s *Store) MoveNode(id string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodeIndex[id]
	if !ok {
		return fmt.Errorf("moving %q: %w", id, ErrNodeNotFound)
	}
	n.Position = pos
	return nil
}

// Subscribe returns a channel that receives the store version after every
// version-advancing mutation, and a function that cancels the subscription.
//
// The channel holds at most one pending version; a slow reader sees only the
// newest one.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan uint64, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) notify(version uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- version:
		default:
			// Replace the stale pending version.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}

// nextID returns one more than the largest numeric node ID, starting at "1".
// Must be called with the lock held.
func (s *Store) nextID() string {
	highest := 0
	for _, n := range s.nodes {
		v, err := strconv.Atoi(n.ID)
		if err != nil || v < 0 {
			continue
		}
		highest = max(highest, v)
	}
	return strconv.Itoa(highest + 1)
}

// bump advances the version. Must be called with the write lock held.
func (s *Store) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store) appendNode(n *Node) {
	s.nodes = append(s.nodes, n)
	s.nodeIndex[n.ID] = n
}

// removeNode deletes a node and cascades to its edges.
// Must be called with the write lock held.
func (s *Store) removeNode(id string) bool {
	if _, ok := s.nodeIndex[id]; !ok {
		return false
	}
	delete(s.nodeIndex, id)
	for i, n := range s.nodes {
		if n.ID == id {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			delete(s.edgeIndex, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	clear(s.edges[len(kept):])
	s.edges = kept
	return true
}

// removeEdge deletes one edge. Must be called with the write lock held.
func (s *Store) removeEdge(id string) bool {
	if _, ok := s.edgeIndex[id]; !ok {
		return false
	}
	delete(s.edgeIndex, id)
	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) copyNodes() []Node {
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

func (s *Store) copyEdges() []Edge {
	out := make([]Edge, len(s.edges))
	for i, e := range s.edges {
		out[i] = *e
	}
	return out
}
