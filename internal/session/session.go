// Package session ties one editing session together: the graph store, the
// block catalog, the compatibility overlay and the Model Builder.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/overlay"
	"github.com/Benny93/dnnmodeler-go/internal/readiness"
	"github.com/Benny93/dnnmodeler-go/internal/submit"
)

// ErrNotReady rejects a build while the graph fails the readiness gate.
var ErrNotReady = errors.New("graph is not ready to build")

// Session is one editing session.
type Session struct {
	store     *graph.Store
	catalog   *catalog.Cache
	refresher *overlay.Refresher
	builder   submit.Builder
	logger    *slog.Logger
}

// New creates a session over store. A nil logger means slog.Default().
func New(store *graph.Store, cat *catalog.Cache, checker overlay.Checker, builder submit.Builder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:     store,
		catalog:   cat,
		refresher: overlay.NewRefresher(store, cat, checker, logger),
		builder:   builder,
		logger:    logger,
	}
}

// Store returns the session's graph store.
func (s *Session) Store() *graph.Store { return s.store }

// Catalog returns the session's block catalog.
func (s *Session) Catalog() *catalog.Cache { return s.catalog }

// Refresher returns the session's compatibility refresher.
func (s *Session) Refresher() *overlay.Refresher { return s.refresher }

// Refresh brings the compatibility map up to the current graph version.
func (s *Session) Refresh(ctx context.Context) error {
	return s.refresher.Refresh(ctx)
}

// Status is a consistent read of everything the editing surface displays.
type Status struct {
	Version       uint64
	Nodes         []graph.Node
	Edges         []graph.Edge
	Catalog       catalog.Status
	CatalogErr    error
	Compatibility overlay.State
	View          overlay.View
	Report        readiness.Report
}

// Ready reports whether the graph passes the readiness gate against a
// compatibility map for the current version.
func (st Status) Ready() bool {
	return st.Report.Ready() && st.Compatibility.Current && st.Compatibility.Err == nil
}

// Reasons lists why Ready is false, in check order.
func (st Status) Reasons() []string {
	var out []string
	if !st.Report.HasInput || !st.Report.HasOutput {
		out = append(out, "input or output layer missing")
	}
	if !st.Report.Reachable {
		out = append(out, "output layer is not reachable from the input layer")
	}
	switch {
	case st.Compatibility.Err != nil:
		out = append(out, "compatibility unavailable")
	case !st.Compatibility.Current:
		out = append(out, "compatibility not checked for the current graph")
	case !st.Report.Compatible:
		out = append(out, "incompatible connections")
	}
	return out
}

// Status returns the current display state.
func (s *Session) Status() Status {
	snap := s.store.Snapshot()
	cs, cerr := s.catalog.Status()
	state := s.refresher.State()
	m := state.Map
	if !state.Current {
		m = nil
	}

	return Status{
		Version:       snap.Version,
		Nodes:         snap.Nodes,
		Edges:         snap.Edges,
		Catalog:       cs,
		CatalogErr:    cerr,
		Compatibility: state,
		View:          overlay.Annotate(snap.Nodes, snap.Edges, m),
		Report:        readiness.Evaluate(snap.Nodes, snap.Edges, m),
	}
}

// Build submits the graph to the Model Builder.
//
// A missing input shape is rejected first, then the readiness gate is
// enforced; neither reaches the network.
func (s *Session) Build(ctx context.Context) (submit.Result, error) {
	snap := s.store.Snapshot()
	if _, err := submit.BuildPayload(snap.Nodes, snap.Edges, s.catalog); err != nil {
		return submit.Result{}, err
	}

	if err := s.Refresh(ctx); err != nil {
		return submit.Result{}, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	st := s.Status()
	if !st.Ready() {
		return submit.Result{}, fmt.Errorf("%w: %s", ErrNotReady, strings.Join(st.Reasons(), "; "))
	}

	res, err := submit.Submit(ctx, s.builder, st.Nodes, st.Edges, s.catalog)
	if err != nil {
		s.logger.Warn("build failed", "version", st.Version, "error", err)
		return submit.Result{}, err
	}
	s.logger.Info("build succeeded", "version", st.Version)
	return res, nil
}
