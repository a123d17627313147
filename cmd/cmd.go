// Package cmd provides CLI command implementations for dnnmodeler.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/dnnmodeler-go/internal/session"
	"github.com/Benny93/dnnmodeler-go/internal/watch"
	"github.com/Benny93/dnnmodeler-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

// CatalogCmd lists the blocks offered by the catalog service.
type CatalogCmd struct {
	JSON bool `help:"Print the catalog as JSON"`
}

// Run executes the catalog command.
func (c *CatalogCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.requireCatalog(); err != nil {
		return err
	}

	out := g.stdout()
	blocks := rt.catalog.Blocks()
	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	}

	source := rt.cfg.Service.BaseURL
	if g.Offline {
		source = "snapshot " + rt.cfg.Storage.Path
	}
	okColor.Fprintf(out, "%d blocks from %s\n\n", len(blocks), source)
	session.WriteBlocks(out, blocks)
	return nil
}

// CheckCmd prints compatibility annotations and readiness for a topology file.
type CheckCmd struct {
	File string `arg:"" type:"existingfile" help:"Topology file (.hcl)"`
}

// Run executes the check command. It fails when the graph is not ready to
// build so it can gate scripts.
func (c *CheckCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	st, err := checkFile(ctx, rt, c.File, g.stdout())
	if err != nil {
		return err
	}
	if !st.Ready() {
		return fmt.Errorf("%s: %w", c.File, session.ErrNotReady)
	}
	return nil
}

// checkFile loads path, refreshes compatibility and writes the annotated
// graph and readiness to w.
func checkFile(ctx context.Context, rt *runtime, path string, w io.Writer) (session.Status, error) {
	sess, err := rt.loadSession(path)
	if err != nil {
		return session.Status{}, err
	}
	if err := sess.Refresh(ctx); err != nil {
		rt.logger.Warn("compatibility check failed", "file", path, "error", err)
	}

	st := sess.Status()
	fmt.Fprintln(w, "## Nodes")
	session.WriteNodes(w, st)
	fmt.Fprintln(w, "\n## Connections")
	session.WriteEdges(w, st)
	fmt.Fprintln(w)
	session.WriteStatus(w, st)
	return st, nil
}

// BuildCmd submits a topology file to the model builder.
type BuildCmd struct {
	File string `arg:"" type:"existingfile" help:"Topology file (.hcl)"`
}

// Run executes the build command.
func (c *BuildCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sess, err := rt.loadSession(c.File)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := sess.Build(ctx)
	if err != nil {
		return err
	}

	out := g.stdout()
	okColor.Fprintf(out, "✓ Build succeeded (%.2fs)\n", time.Since(start).Seconds())
	if res.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", res.Summary)
	}
	return nil
}

// WatchCmd re-checks topology files whenever they are saved.
type WatchCmd struct {
	Dir      string        `arg:"" optional:"" default:"." type:"existingdir" help:"Directory to watch"`
	Debounce time.Duration `default:"300ms" help:"Quiet period before re-checking"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	w, err := watch.New(c.Dir, watch.WithDebounce(c.Debounce), watch.WithLogger(rt.logger))
	if err != nil {
		return err
	}

	out := g.stdout()
	check := func(ctx context.Context, paths []string) {
		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			rel, err := filepath.Rel(w.Root(), path)
			if err != nil {
				rel = path
			}
			fmt.Fprintf(out, "\n# %s\n", rel)
			if _, err := checkFile(ctx, rt, path, out); err != nil {
				errColor.Fprintf(out, "Error: %v\n", err)
			}
		}
	}

	files, err := w.Scan()
	if err != nil {
		return err
	}
	check(ctx, files)

	fmt.Fprintln(out, "\n## Watch Mode")
	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", w.Root())

	err = w.Run(ctx, check)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(out, "Watch mode stopped.")
	return nil
}

// ShellCmd starts an interactive editing session.
type ShellCmd struct {
	File string `arg:"" optional:"" type:"existingfile" help:"Topology file to start from"`
}

// Run executes the shell command.
func (c *ShellCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	out := g.stdout()
	if rt.catalogErr != nil {
		warnColor.Fprintf(out, "Block catalog unavailable: %v\n", rt.catalogErr)
	}

	sess := rt.newSession(nil)
	if c.File != "" {
		if sess, err = rt.loadSession(c.File); err != nil {
			return err
		}
	}
	_ = sess.Refresh(ctx)

	fmt.Fprintln(out, "Type help for commands.")
	return session.NewShell(sess, out).Run(ctx, g.stdin())
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	File      string `arg:"" optional:"" type:"existingfile" help:"Topology file to start from"`
	Transport string `default:"sdk" enum:"sdk,line" help:"Stdio framing: sdk session or plain line loop"`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sess := rt.newSession(nil)
	if c.File != "" {
		if sess, err = rt.loadSession(c.File); err != nil {
			return err
		}
	}

	// stdout carries JSON-RPC only; logs go to stderr.
	server := mcp.NewServer(sess)
	if c.Transport == "line" {
		err = server.Run(ctx, g.stdin(), g.stdout())
	} else {
		err = server.ServeStdio(ctx, g.In, g.Out)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// VersionCmd prints the version.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout(), "dnnmodeler %s\n", Version)
	return nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Catalog    CatalogCmd `cmd:"" help:"List the blocks offered by the catalog"`
	Check      CheckCmd   `cmd:"" help:"Check compatibility and build readiness of a topology file"`
	Build      BuildCmd   `cmd:"" help:"Submit a topology file to the model builder"`
	Watch      WatchCmd   `cmd:"" help:"Re-check topology files when they change"`
	Shell      ShellCmd   `cmd:"" help:"Interactive editing session"`
	MCP        MCPCmd     `cmd:"" help:"Start MCP server (stdio transport)"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Show version information"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
// SIGINT and SIGTERM cancel the command's context.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("dnnmodeler"),
		kong.Description("Compose neural network topologies from a block catalog and build them remotely"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kongCtx.BindTo(ctx, (*context.Context)(nil))

	return kongCtx.Run(&c.Globals)
}
