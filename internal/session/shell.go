package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Benny93/dnnmodeler-go/internal/embeddings"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
)

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

const searchLimit = 10

// command is one shell verb. Commands that mutate the graph trigger a
// compatibility refresh after they succeed.
type command struct {
	usage   string
	summary string
	minArgs int
	mutates bool
	run     func(ctx context.Context, sh *Shell, args []string) error
}

// commands is populated in init; help reads it.
var commands map[string]command

func init() {
	commands = map[string]command{
		"blocks": {
			usage:   "blocks",
			summary: "list catalog blocks",
			run: func(_ context.Context, sh *Shell, _ []string) error {
				WriteBlocks(sh.out, sh.s.catalog.Blocks())
				return nil
			},
		},
		"search": {
			usage:   "search QUERY",
			summary: "rank catalog blocks against free text",
			minArgs: 1,
			run: func(_ context.Context, sh *Shell, args []string) error {
				idx := embeddings.NewIndex(sh.s.catalog.Blocks())
				WriteMatches(sh.out, idx.Search(strings.Join(args, " "), searchLimit))
				return nil
			},
		},
		"add": {
			usage:   "add BLOCK",
			summary: "place a block by name or type",
			minArgs: 1,
			mutates: true,
			run: func(_ context.Context, sh *Shell, args []string) error {
				def, err := sh.s.catalog.Find(strings.Join(args, " "))
				if err != nil {
					return err
				}
				n := sh.s.store.AddBlockNode(def)
				okColor.Fprintf(sh.out, "Added %s as %s\n", n.Label, n.ID)
				return nil
			},
		},
		"rm": {
			usage:   "rm NODE",
			summary: "delete a block and its connections",
			minArgs: 1,
			mutates: true,
			run: func(_ context.Context, sh *Shell, args []string) error {
				removed, err := sh.s.store.DeleteNode(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("node %q: %w", args[0], graph.ErrNodeNotFound)
				}
				okColor.Fprintf(sh.out, "Deleted %s\n", args[0])
				return nil
			},
		},
		"unlink": {
			usage:   "unlink EDGE | unlink SOURCE TARGET",
			summary: "delete a connection",
			minArgs: 1,
			mutates: true,
			run: func(_ context.Context, sh *Shell, args []string) error {
				id := args[0]
				if len(args) > 1 {
					id = graph.EdgeID(args[0], args[1])
				}
				if !sh.s.store.DeleteEdge(id) {
					return fmt.Errorf("no connection %q", id)
				}
				okColor.Fprintf(sh.out, "Deleted %s\n", id)
				return nil
			},
		},
		"connect": {
			usage:   "connect SOURCE TARGET",
			summary: "connect two nodes",
			minArgs: 2,
			mutates: true,
			run: func(_ context.Context, sh *Shell, args []string) error {
				e, err := sh.s.store.Connect(args[0], args[1])
				if err != nil {
					return err
				}
				okColor.Fprintf(sh.out, "Connected %s\n", e.ID)
				return nil
			},
		},
		"set": {
			usage:   "set NODE PARAM [VALUE]",
			summary: "set a raw parameter value; no value or \"\" clears it",
			minArgs: 2,
			mutates: true,
			run: func(_ context.Context, sh *Shell, args []string) error {
				value := afterFields(sh.line, 3)
				if value == `""` {
					value = ""
				}
				if err := sh.s.store.SetParameter(args[0], args[1], value); err != nil {
					return err
				}
				okColor.Fprintf(sh.out, "%s.%s = %q\n", args[0], args[1], value)
				return nil
			},
		},
		"move": {
			usage:   "move NODE X Y",
			summary: "set a node's canvas position",
			minArgs: 3,
			run: func(_ context.Context, sh *Shell, args []string) error {
				x, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("x: %w", err)
				}
				y, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("y: %w", err)
				}
				return sh.s.store.MoveNode(args[0], graph.Position{X: x, Y: y})
			},
		},
		"select": {
			usage:   "select ID... | select none",
			summary: "select nodes and edges",
			minArgs: 1,
			run: func(_ context.Context, sh *Shell, args []string) error {
				return sh.s.store.Select(args...)
			},
		},
		"nodes": {
			usage:   "nodes",
			summary: "list nodes with annotations",
			run: func(_ context.Context, sh *Shell, _ []string) error {
				WriteNodes(sh.out, sh.s.Status())
				return nil
			},
		},
		"edges": {
			usage:   "edges",
			summary: "list connections with annotations",
			run: func(_ context.Context, sh *Shell, _ []string) error {
				WriteEdges(sh.out, sh.s.Status())
				return nil
			},
		},
		"status": {
			usage:   "status",
			summary: "show readiness",
			run: func(ctx context.Context, sh *Shell, _ []string) error {
				_ = sh.s.Refresh(ctx)
				WriteStatus(sh.out, sh.s.Status())
				return nil
			},
		},
		"build": {
			usage:   "build",
			summary: "submit the model to the builder",
			run: func(ctx context.Context, sh *Shell, _ []string) error {
				res, err := sh.s.Build(ctx)
				if err != nil {
					return err
				}
				okColor.Fprintln(sh.out, "Build succeeded")
				if res.Summary != "" {
					fmt.Fprintln(sh.out, res.Summary)
				}
				return nil
			},
		},
		"help": {
			usage:   "help",
			summary: "show commands",
			run: func(_ context.Context, sh *Shell, _ []string) error {
				sh.writeHelp()
				return nil
			},
		},
		"quit": {
			usage:   "quit",
			summary: "leave the shell",
			run: func(context.Context, *Shell, []string) error {
				return errQuit
			},
		},
	}
}

// Shell is a line-oriented editing surface over a Session.
type Shell struct {
	s      *Session
	out    io.Writer
	prompt string
	line   string // line being executed, for commands that take raw text
}

// NewShell creates a shell writing to out.
func NewShell(s *Session, out io.Writer) *Shell {
	return &Shell{s: s, out: out, prompt: "dnn> "}
}

// Run reads commands from in until EOF, quit or ctx is done. Command errors
// are printed and the loop continues.
func (sh *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, sh.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		quit, err := sh.Exec(ctx, scanner.Text())
		if err != nil {
			errColor.Fprintf(sh.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (sh *Shell) Exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
	if len(args) < cmd.minArgs {
		return false, fmt.Errorf("usage: %s", cmd.usage)
	}

	sh.line = line
	err := cmd.run(ctx, sh, args)
	if errors.Is(err, errQuit) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if cmd.mutates {
		if rerr := sh.s.Refresh(ctx); rerr != nil {
			warnColor.Fprintln(sh.out, "Compatibility unavailable")
		}
	}
	return false, nil
}

// afterFields returns line with its first n fields removed, keeping the
// remainder's inner spacing.
func afterFields(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return rest
}

func (sh *Shell) writeHelp() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(sh.out, "  %-36s %s\n", c.usage, c.summary)
	}
}
