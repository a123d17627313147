package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

// SnapshotSource is a catalog.Source that records every successful remote
// fetch and, in offline mode, serves the last recording instead.
//
// A failed remote fetch is returned as-is; it never falls back to the
// snapshot. Offline mode is an explicit choice.
type SnapshotSource struct {
	remote  catalog.Source
	backend Backend
	origin  string
	offline bool
	now     func() time.Time
	logger  *slog.Logger
}

var _ catalog.Source = (*SnapshotSource)(nil)

// SnapshotOption configures a SnapshotSource.
type SnapshotOption func(*SnapshotSource)

// Offline serves the stored snapshot without contacting the remote source.
func Offline(offline bool) SnapshotOption {
	return func(s *SnapshotSource) { s.offline = offline }
}

// WithClock sets the time source for FetchedAt.
func WithClock(now func() time.Time) SnapshotOption {
	return func(s *SnapshotSource) { s.now = now }
}

// WithSnapshotLogger sets the logger.
func WithSnapshotLogger(l *slog.Logger) SnapshotOption {
	return func(s *SnapshotSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSnapshotSource wraps remote. origin identifies the remote service in
// stored snapshots.
func NewSnapshotSource(remote catalog.Source, backend Backend, origin string, opts ...SnapshotOption) *SnapshotSource {
	s := &SnapshotSource{
		remote:  remote,
		backend: backend,
		origin:  origin,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchBlocks implements catalog.Source.
func (s *SnapshotSource) FetchBlocks(ctx context.Context) ([]catalog.BlockDefinition, error) {
	if s.offline {
		snap, err := s.backend.LoadCatalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading offline catalog: %w", err)
		}
		s.logger.Info("serving catalog snapshot", "origin", snap.Origin, "fetched_at", snap.FetchedAt, "blocks", len(snap.Blocks))
		return snap.Blocks, nil
	}

	blocks, err := s.remote.FetchBlocks(ctx)
	if err != nil {
		return nil, err
	}

	snap := CatalogSnapshot{Origin: s.origin, FetchedAt: s.now(), Blocks: blocks}
	if err := s.backend.SaveCatalog(ctx, snap); err != nil {
		s.logger.Warn("catalog snapshot not saved", "error", err)
	}
	return blocks, nil
}
