//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package canvas

import (
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/semgraph/graph"
)

// Render is a pure function of the inputs: it filters nodes and edges per
// the options, builds a forest under the view's edges, and emits an ASCII
// indented tree with type tags and focus/selection decoration.
func Render(nodes []*graph.Node, edges []*graph.Edge, opts Options) string {
	included := make(map[string]*graph.Node)
	for _, n := range nodes {
		if matchesFilters(n, opts.Filters) {
			included[n.SemanticID] = n
		}
	}
	if len(included) == 0 {
		return "(empty canvas)\n"
	}

	children := make(map[string][]string)
	hasParent := make(map[string]bool)
	for _, e := range edges {
		if !edgeVisible(e, opts.View) {
			continue
		}
		if included[e.SourceID] == nil || included[e.TargetID] == nil {
			continue
		}
		children[e.SourceID] = append(children[e.SourceID], e.TargetID)
		hasParent[e.TargetID] = true
	}
	for id := range children {
		sort.Strings(children[id])
	}

	var roots []string
	for id := range included {
		if !hasParent[id] {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var b strings.Builder
	visited := make(map[string]bool)
	for _, root := range roots {
		renderSubtree(&b, root, 0, included, children, visited, opts)
	}
	// Nodes only reachable through a cycle still get printed once.
	var rest []string
	for id := range included {
		if !visited[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		renderSubtree(&b, id, 0, included, children, visited, opts)
	}
	return b.String()
}

func renderSubtree(b *strings.Builder, id string, depth int, included map[string]*graph.Node,
	children map[string][]string, visited map[string]bool, opts Options) {
	if visited[id] {
		return
	}
	visited[id] = true

	node := included[id]
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "[%s] %s", node.Type, node.SemanticID)
	if node.Name != "" {
		fmt.Fprintf(b, ": %s", node.Name)
	}
	if id == opts.FocusID {
		b.WriteString(" *focus*")
	}
	if opts.Selection[id] {
		b.WriteString(" (selected)")
	}
	b.WriteByte('\n')

	for _, child := range children[id] {
		renderSubtree(b, child, depth+1, included, children, visited, opts)
	}
}

func matchesFilters(n *graph.Node, f Filters) bool {
	if len(f.NodeTypes) > 0 {
		found := false
		for _, t := range f.NodeTypes {
			if n.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Phase > 0 && n.Phase() != f.Phase {
		return false
	}
	if !f.ShowDeleted {
		if deleted, ok := n.Attributes["deleted"].(bool); ok && deleted {
			return false
		}
	}
	if f.SearchTerm != "" {
		term := strings.ToLower(f.SearchTerm)
		if !strings.Contains(strings.ToLower(n.SemanticID), term) &&
			!strings.Contains(strings.ToLower(n.Name), term) &&
			!strings.Contains(strings.ToLower(n.Description), term) {
			return false
		}
	}
	return true
}

// edgeVisible applies the view's edge-label substring filter.
func edgeVisible(e *graph.Edge, view View) bool {
	substrings := viewEdgeSubstrings[view]
	if len(substrings) == 0 {
		return true
	}
	label := strings.ToLower(string(e.Type))
	for _, sub := range substrings {
		if strings.Contains(label, sub) {
			return true
		}
	}
	return false
}
