// Package storage persists block catalog snapshots so the catalog can be
// browsed without the Block Catalog service.
//
// Graph topologies are never stored here.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

// ErrNoSnapshot is returned by LoadCatalog when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no catalog snapshot")

// ErrNotInitialized is returned when a backend is used before Initialize.
var ErrNotInitialized = errors.New("storage backend not initialized")

// CatalogSnapshot is a block catalog as fetched from one service.
type CatalogSnapshot struct {
	// Origin is the base URL the catalog was fetched from.
	Origin string `json:"origin"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`

	// Blocks are the definitions in catalog order.
	Blocks []catalog.BlockDefinition `json:"blocks"`
}

// Backend defines the interface for snapshot storage implementations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Initialize opens or creates the storage at the given path.
	// If readOnly is true, SaveCatalog fails.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// SaveCatalog replaces the stored snapshot.
	SaveCatalog(ctx context.Context, snap CatalogSnapshot) error

	// LoadCatalog returns the stored snapshot, or ErrNoSnapshot.
	LoadCatalog(ctx context.Context) (CatalogSnapshot, error)
}
