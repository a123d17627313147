package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/client"
	"github.com/Benny93/dnnmodeler-go/internal/config"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/session"
	"github.com/Benny93/dnnmodeler-go/internal/storage"
	"github.com/Benny93/dnnmodeler-go/internal/topology"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config      string `short:"c" type:"path" help:"Config file (default $DNNMODELER_CONFIG or ~/.config/dnnmodeler/config.toml)"`
	BaseURL     string `name:"base-url" placeholder:"URL" help:"Base URL of the block catalog, compatibility and builder services"`
	StoragePath string `name:"storage-path" type:"path" help:"Catalog snapshot directory"`
	Offline     bool   `help:"Serve the block catalog from the last saved snapshot"`
	LogLevel    string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat   string `name:"log-format" help:"Log format (text, json)"`

	Out io.Writer `kong:"-"`
	In  io.Reader `kong:"-"`
	Err io.Writer `kong:"-"`
}

func (g *Globals) stdout() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}

func (g *Globals) stdin() io.Reader {
	if g.In != nil {
		return g.In
	}
	return os.Stdin
}

func (g *Globals) stderr() io.Writer {
	if g.Err != nil {
		return g.Err
	}
	return os.Stderr
}

// runtime is the wired service stack behind a command.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *client.Client
	backend storage.Backend
	catalog *catalog.Cache

	// catalogErr is the failure of the initial catalog load, if any.
	catalogErr error
}

func (g *Globals) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if g.Config != "" {
		cfg, err = config.LoadFile(g.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if g.BaseURL != "" {
		cfg.Service.BaseURL = g.BaseURL
	}
	if g.StoragePath != "" {
		cfg.Storage.Path = g.StoragePath
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	return cfg, nil
}

// open loads configuration, wires the HTTP client and snapshot storage, and
// loads the block catalog. A failed catalog load is recorded, not returned;
// commands decide whether they can continue without one.
func (g *Globals) open(ctx context.Context) (*runtime, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := config.NewLogger(cfg.Log.Level, cfg.Log.Format, g.stderr())
	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		client: client.New(client.Endpoints{
			BaseURL:           cfg.Service.BaseURL,
			CatalogPath:       cfg.Service.CatalogPath,
			CompatibilityPath: cfg.Service.CompatibilityPath,
			BuildPath:         cfg.Service.BuildPath,
		}, client.WithTimeout(cfg.Service.Timeout), client.WithLogger(logger)),
	}

	rt.backend, err = g.openBackend(cfg.Storage.Path, logger)
	if err != nil {
		return nil, err
	}

	src := storage.NewSnapshotSource(rt.client, rt.backend, cfg.Service.BaseURL,
		storage.Offline(g.Offline),
		storage.WithSnapshotLogger(logger),
	)
	rt.catalog = catalog.NewCache(logger)
	rt.catalogErr = rt.catalog.Load(ctx, src)

	return rt, nil
}

// openBackend opens the Badger snapshot store. Online, a store that cannot be
// opened (for example because another dnnmodeler process holds its lock)
// degrades to an in-memory one; offline it is required.
func (g *Globals) openBackend(path string, logger *slog.Logger) (storage.Backend, error) {
	badgerBackend := storage.NewBadgerBackend()

	if g.Offline {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("no catalog snapshot at %s: %w", path, storage.ErrNoSnapshot)
		}
		if err := badgerBackend.Initialize(path, true); err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return badgerBackend, nil
	}

	err := os.MkdirAll(path, 0o755)
	if err == nil {
		err = badgerBackend.Initialize(path, false)
	}
	if err != nil {
		logger.Warn("catalog snapshots disabled", "path", path, "error", err)
		mem := storage.NewMemoryBackend()
		if err := mem.Initialize("", false); err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return mem, nil
	}
	return badgerBackend, nil
}

// Close releases the snapshot store.
func (rt *runtime) Close() error {
	if rt.backend == nil {
		return nil
	}
	return rt.backend.Close()
}

// newSession starts an editing session over store, or over the default
// graph when store is nil.
func (rt *runtime) newSession(store *graph.Store) *session.Session {
	if store == nil {
		store = graph.NewStore()
	}
	return session.New(store, rt.catalog, rt.client, rt.client, rt.logger)
}

// loadSession replays a topology file onto a new session.
func (rt *runtime) loadSession(path string) (*session.Session, error) {
	store, _, err := topology.Load(path, rt.catalog)
	if err != nil {
		return nil, err
	}
	return rt.newSession(store), nil
}

// requireCatalog fails when the initial catalog load did not succeed.
func (rt *runtime) requireCatalog() error {
	if rt.catalogErr == nil {
		return nil
	}
	if errors.Is(rt.catalogErr, storage.ErrNoSnapshot) {
		return fmt.Errorf("%w (run once without --offline to save one)", rt.catalogErr)
	}
	return rt.catalogErr
}
