package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownBlock is returned when a block name or type is not in the catalog.
var ErrUnknownBlock = errors.New("unknown block")

// Status is the loading state of the catalog.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Source fetches the full list of block definitions.
type Source interface {
	FetchBlocks(ctx context.Context) ([]BlockDefinition, error)
}

// Cache holds the block definitions for the whole process.
//
// It is written once at startup by Load (and again only on an explicit
// reload) and read from everywhere else. A failed load leaves the cache empty
// in StatusFailed; there is no automatic retry.
type Cache struct {
	mu     sync.RWMutex
	blocks []BlockDefinition
	status Status
	err    error
	logger *slog.Logger
}

// NewCache creates an empty cache in StatusLoading.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{status: StatusLoading, logger: logger}
}

// NewStaticCache creates a ready cache holding the given blocks.
func NewStaticCache(blocks []BlockDefinition) *Cache {
	c := NewCache(nil)
	c.replace(blocks)
	return c
}

// Load fetches the catalog from src and replaces the cached blocks wholesale.
func (c *Cache) Load(ctx context.Context, src Source) error {
	c.mu.Lock()
	c.status = StatusLoading
	c.err = nil
	c.mu.Unlock()

	blocks, err := src.FetchBlocks(ctx)
	if err != nil {
		c.mu.Lock()
		c.blocks = nil
		c.status = StatusFailed
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("block catalog unavailable", "error", err)
		return fmt.Errorf("loading block catalog: %w", err)
	}

	c.replace(blocks)
	c.logger.Debug("block catalog loaded", "blocks", len(blocks))
	return nil
}

func (c *Cache) replace(blocks []BlockDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append([]BlockDefinition(nil), blocks...)
	c.status = StatusReady
	c.err = nil
}

// Blocks returns a copy of the cached definitions in catalog order.
func (c *Cache) Blocks() []BlockDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]BlockDefinition(nil), c.blocks...)
}

// Status returns the loading state and, in StatusFailed, the load error.
func (c *Cache) Status() (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.err
}

// Lookup finds the definition for a node's block type.
//
// Several blocks may share a type tag, so name (the node's label) is used to
// pick among them; when nothing matches both, the first block with the type
// wins.
func (c *Cache) Lookup(blockType, name string) (BlockDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var first *BlockDefinition
	for i := range c.blocks {
		b := &c.blocks[i]
		if b.Type != blockType {
			continue
		}
		if b.Name == name {
			return *b, true
		}
		if first == nil {
			first = b
		}
	}
	if first != nil {
		return *first, true
	}
	return BlockDefinition{}, false
}

// Find resolves a user query to a block, matching the display name first
// (case-insensitive) and then the type tag. Unknown queries return an error
// wrapping ErrUnknownBlock that names the closest block, if any.
func (c *Cache) Find(query string) (BlockDefinition, error) {
	c.mu.RLock()
	for _, b := range c.blocks {
		if strings.EqualFold(b.Name, query) {
			c.mu.RUnlock()
			return b, nil
		}
	}
	for _, b := range c.blocks {
		if strings.EqualFold(b.Type, query) {
			c.mu.RUnlock()
			return b, nil
		}
	}
	c.mu.RUnlock()

	if suggestion, ok := c.Suggest(query); ok {
		return BlockDefinition{}, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownBlock, query, suggestion)
	}
	return BlockDefinition{}, fmt.Errorf("%w %q", ErrUnknownBlock, query)
}

// Suggest returns the block name closest to query by edit distance, if it is
// close enough to be a plausible typo.
func (c *Cache) Suggest(query string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(query)
	best := ""
	bestDist := -1
	for _, b := range c.blocks {
		for _, candidate := range []string{b.Name, b.Type} {
			d := levenshtein.ComputeDistance(q, strings.ToLower(candidate))
			if bestDist < 0 || d < bestDist {
				best, bestDist = b.Name, d
			}
		}
	}

	if bestDist < 0 || bestDist > max(2, len(q)/3) {
		return "", false
	}
	return best, true
}

// ResolveParameters resolves user parameters against the schema of the first
// block with the given type. Unknown types resolve against an empty schema.
func (c *Cache) ResolveParameters(blockType string, user map[string]any) map[string]any {
	return c.ResolveBlockParameters(blockType, "", user)
}

// ResolveBlockParameters is ResolveParameters with the block name used to
// disambiguate shared type tags.
func (c *Cache) ResolveBlockParameters(blockType, name string, user map[string]any) map[string]any {
	def, _ := c.Lookup(blockType, name)
	return Resolve(def.Parameters, user)
}
