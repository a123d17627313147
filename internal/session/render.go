package session

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/embeddings"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// WriteBlocks lists catalog blocks with their parameter defaults.
func WriteBlocks(w io.Writer, blocks []catalog.BlockDefinition) {
	if len(blocks) == 0 {
		warnColor.Fprintln(w, "No blocks available")
		return
	}
	for _, b := range blocks {
		fmt.Fprintf(w, "%-20s %s\n", b.Name, dimColor.Sprint(b.Type))
		for _, name := range b.Parameters.Names() {
			spec := b.Parameters[name]
			kind := ""
			if spec.Kind != "" {
				kind = " (" + spec.Kind + ")"
			}
			fmt.Fprintf(w, "    %s = %s%s\n", name, formatValue(spec.Default), kind)
		}
	}
}

// WriteMatches lists ranked search results.
func WriteMatches(w io.Writer, matches []embeddings.Match) {
	if len(matches) == 0 {
		warnColor.Fprintln(w, "No matching blocks")
		return
	}
	for _, m := range matches {
		fmt.Fprintf(w, "%-20s %-14s %s\n", m.Block.Name, dimColor.Sprint(m.Block.Type), dimColor.Sprintf("%.2f", m.Score))
	}
}

// WriteNodes lists nodes with their parameters and annotations.
func WriteNodes(w io.Writer, st Status) {
	for _, n := range st.Nodes {
		label := n.Label
		if n.Kind == graph.KindBlock && n.BlockType != "" {
			label += " [" + n.BlockType + "]"
		}
		marker := " "
		if n.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%-8s %s\n", marker, n.ID, label)

		for _, name := range sortedParams(n.Parameters) {
			fmt.Fprintf(w, "    %s = %s\n", name, formatValue(n.Parameters[name]))
		}

		a := st.View.Node(n.ID)
		if a.OutputShape != nil {
			okColor.Fprintf(w, "    output shape %s\n", formatValue(a.OutputShape))
		}
		if a.Error != "" {
			errColor.Fprintf(w, "    error: %s\n", a.Error)
		}
	}
}

// WriteEdges lists edges and flags incompatible ones.
func WriteEdges(w io.Writer, st Status) {
	if len(st.Edges) == 0 {
		dimColor.Fprintln(w, "No connections")
		return
	}
	for _, e := range st.Edges {
		line := fmt.Sprintf("%-16s %s -> %s", e.ID, e.Source, e.Target)
		a := st.View.Edge(e.ID)
		switch {
		case a.Incompatible && a.Error != "":
			errColor.Fprintf(w, "%s  incompatible: %s\n", line, a.Error)
		case a.Incompatible:
			errColor.Fprintf(w, "%s  incompatible\n", line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// WriteStatus summarizes catalog, compatibility and readiness state.
func WriteStatus(w io.Writer, st Status) {
	fmt.Fprintf(w, "Graph version:  %d (%d nodes, %d edges)\n", st.Version, len(st.Nodes), len(st.Edges))

	switch {
	case st.CatalogErr != nil:
		errColor.Fprintf(w, "Catalog:        %s (%v)\n", st.Catalog, st.CatalogErr)
	default:
		fmt.Fprintf(w, "Catalog:        %s\n", st.Catalog)
	}

	c := st.Compatibility
	switch {
	case c.Err != nil:
		warnColor.Fprintf(w, "Compatibility:  unavailable (%v)\n", c.Err)
	case !c.Applied:
		fmt.Fprintln(w, "Compatibility:  not checked")
	case !c.Current:
		warnColor.Fprintf(w, "Compatibility:  stale (version %d)\n", c.Version)
	default:
		fmt.Fprintf(w, "Compatibility:  checked (version %d)\n", c.Version)
	}

	if len(st.Report.Cycle) > 0 {
		warnColor.Fprintf(w, "Cycle:          %s\n", strings.Join(slices.Concat(st.Report.Cycle, st.Report.Cycle[:1]), " -> "))
	}

	if st.Ready() {
		okColor.Fprintln(w, "Ready to build")
		return
	}
	errColor.Fprintf(w, "Not ready: %s\n", strings.Join(st.Reasons(), "; "))
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return `""`
	case string:
		return fmt.Sprintf("%q", t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func sortedParams(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
