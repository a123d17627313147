package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

// Key layout. Blocks are stored one per key so catalog order survives
// iteration; the meta key holds everything else.
const (
	prefixBlock = "b:"
	keyMeta     = "m:catalog"
)

type snapshotMeta struct {
	CatalogSnapshot
	Count int `json:"count"`
}

// BadgerBackend is a BadgerDB-backed Backend.
type BadgerBackend struct {
	mu          sync.RWMutex
	db          *badger.DB
	initialized bool
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	b.db = db
	b.initialized = true
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// SaveCatalog replaces the stored snapshot in a single transaction.
func (b *BadgerBackend) SaveCatalog(ctx context.Context, snap CatalogSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, []byte(prefixBlock)); err != nil {
			return err
		}

		for i, block := range snap.Blocks {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := json.Marshal(block)
			if err != nil {
				return fmt.Errorf("marshaling block %s: %w", block.Name, err)
			}
			if err := txn.Set(blockKey(i), data); err != nil {
				return fmt.Errorf("storing block %s: %w", block.Name, err)
			}
		}

		meta := snapshotMeta{CatalogSnapshot: snap, Count: len(snap.Blocks)}
		meta.Blocks = nil
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling catalog meta: %w", err)
		}
		return txn.Set([]byte(keyMeta), data)
	})
}

// LoadCatalog reads the stored snapshot.
func (b *BadgerBackend) LoadCatalog(ctx context.Context) (CatalogSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return CatalogSnapshot{}, ErrNotInitialized
	}

	var snap CatalogSnapshot
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyMeta))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return fmt.Errorf("reading catalog meta: %w", err)
		}

		var meta snapshotMeta
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("decoding catalog meta: %w", err)
		}
		snap = meta.CatalogSnapshot
		snap.Blocks = make([]catalog.BlockDefinition, 0, meta.Count)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixBlock)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var block catalog.BlockDefinition
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &block)
			}); err != nil {
				return fmt.Errorf("decoding block %s: %w", it.Item().Key(), err)
			}
			snap.Blocks = append(snap.Blocks, block)
		}
		return nil
	})
	if err != nil {
		return CatalogSnapshot{}, err
	}
	return snap, nil
}

// blockKey zero-pads the index so lexical key order is catalog order.
func blockKey(i int) []byte {
	return fmt.Appendf(nil, "%s%08d", prefixBlock, i)
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	return nil
}
