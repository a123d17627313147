package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/submit"
)

// RequestEdge is an edge as sent to the Compatibility service.
type RequestEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Request is the body of a compatibility check.
type Request struct {
	// Version is the graph version the request was built from. It is not sent.
	Version uint64                `json:"-"`
	Nodes   []submit.ResolvedNode `json:"nodes"`
	Edges   []RequestEdge         `json:"edges"`
}

// NewRequest builds the compatibility request for a snapshot.
func NewRequest(snap graph.Snapshot, r submit.Resolver) Request {
	req := Request{
		Version: snap.Version,
		Nodes:   submit.ResolveNodes(snap.Nodes, r),
		Edges:   make([]RequestEdge, len(snap.Edges)),
	}
	for i, e := range snap.Edges {
		req.Edges[i] = RequestEdge{ID: e.ID, Source: e.Source, Target: e.Target}
	}
	return req
}

// Checker asks the Compatibility service for a fresh map.
type Checker interface {
	CheckCompatibility(ctx context.Context, req Request) (Map, error)
}

// State is the most recently applied compatibility result.
type State struct {
	// Version is the graph version the result belongs to.
	Version uint64

	// Map is the applied map; nil when the check failed.
	Map Map

	// Err is the failure of the check for Version, if it failed.
	Err error

	// Applied is false until the first result lands.
	Applied bool

	// Current reports whether Version is still the store's version.
	Current bool
}

// Refresher keeps the compatibility map in step with a graph store.
//
// Each request is tagged with the version it was built from and a response is
// applied only if no newer version has been issued since, so a slow response
// can never overwrite a newer map.
type Refresher struct {
	store    *graph.Store
	resolver submit.Resolver
	checker  Checker
	logger   *slog.Logger

	mu       sync.Mutex
	issued   uint64
	inFlight bool
	state    State
}

// NewRefresher creates a refresher for store. A nil logger means slog.Default().
func NewRefresher(store *graph.Store, resolver submit.Resolver, checker Checker, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		store:    store,
		resolver: resolver,
		checker:  checker,
		logger:   logger,
	}
}

// Refresh brings the map up to the store's current version.
//
// It does nothing when the current version is already applied or in flight,
// or is older than an issued version. A graph without edges gets an empty map
// without a round trip. A failed check is recorded on the state for its
// version and returned; the next Refresh at that version tries again.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap := r.store.Snapshot()

	r.mu.Lock()
	switch {
	case r.state.Applied && r.state.Err == nil && r.state.Version == snap.Version,
		r.inFlight && r.issued == snap.Version,
		snap.Version < r.issued:
		r.mu.Unlock()
		return nil
	}
	r.issued = snap.Version
	r.inFlight = true
	r.mu.Unlock()

	if len(snap.Edges) == 0 {
		r.apply(snap.Version, Map{}, nil)
		return nil
	}

	m, err := r.checker.CheckCompatibility(ctx, NewRequest(snap, r.resolver))
	if err != nil {
		err = fmt.Errorf("checking compatibility for version %d: %w", snap.Version, err)
		r.logger.Warn("compatibility unavailable", "version", snap.Version, "error", err)
		r.apply(snap.Version, nil, err)
		return err
	}
	if m == nil {
		m = Map{}
	}
	r.apply(snap.Version, m, nil)
	return nil
}

func (r *Refresher) apply(version uint64, m Map, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if version == r.issued {
		r.inFlight = false
	}
	if version < r.issued {
		r.logger.Debug("discarding stale compatibility map", "version", version, "issued", r.issued)
		return
	}
	r.state = State{Version: version, Map: m, Err: err, Applied: true}
}

// State returns the applied result and whether it is current.
func (r *Refresher) State() State {
	v := r.store.Version()

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	s.Current = s.Applied && s.Version == v
	return s
}

// Run refreshes once and then after every store change until ctx is done.
// Failed checks are logged; Run does not retry them until the graph changes.
func (r *Refresher) Run(ctx context.Context) error {
	changes, cancel := r.store.Subscribe()
	defer cancel()

	_ = r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			_ = r.Refresh(ctx)
		}
	}
}
