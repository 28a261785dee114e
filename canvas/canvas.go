//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package canvas holds the view-only presentation state of a session and
// renders the graph as an ASCII forest.
package canvas

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
)

// View selects which edge family the canvas draws.
type View string

// View constants.
const (
	ViewHierarchy    View = "hierarchy"
	ViewAllocation   View = "allocation"
	ViewTraceability View = "traceability"
	ViewDependency   View = "dependency"
	ViewFchain       View = "fchain"
	ViewAll          View = "all"
)

// viewEdgeSubstrings lists, per view, the substrings an edge type label must
// contain to be drawn. The all view draws every edge.
var viewEdgeSubstrings = map[View][]string{
	ViewHierarchy:    {"compose", "contains", "parent"},
	ViewAllocation:   {"allocate", "realize", "implement"},
	ViewTraceability: {"trace", "derive", "satisfy", "verify"},
	ViewDependency:   {"depend", "use", "require", "import"},
	ViewFchain:       {"flow", "trigger", "signal", "data", "io"},
	ViewAll:          nil,
}

// ParseView resolves a view name.
func ParseView(name string) (View, error) {
	v := View(strings.ToLower(name))
	if _, ok := viewEdgeSubstrings[v]; !ok {
		return "", fmt.Errorf("unknown view: %q", name)
	}
	return v, nil
}

// Filters narrows the rendered node set. Zero values mean no restriction.
type Filters struct {
	NodeTypes   []graph.NodeType `json:"nodeTypes,omitempty"`
	Phase       int              `json:"phase,omitempty"`
	ShowDeleted bool             `json:"showDeleted,omitempty"`
	SearchTerm  string           `json:"searchTerm,omitempty"`
}

// Options parameterizes one render pass.
type Options struct {
	View      View
	Filters   Filters
	Selection map[string]bool
	FocusID   string
}

// Controller owns the canvas state of one session.
type Controller struct {
	svc *dataservice.Service

	mu        sync.Mutex
	view      View
	filters   Filters
	selection map[string]bool
	focusID   string
}

// New creates a controller starting on the hierarchy view.
func New(svc *dataservice.Service) *Controller {
	return &Controller{svc: svc, view: ViewHierarchy, selection: make(map[string]bool)}
}

// SetView switches the active view.
func (c *Controller) SetView(name string) error {
	view, err := ParseView(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
	return nil
}

// View returns the active view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetFilter updates one filter from a key=value token.
func (c *Controller) SetFilter(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case "type":
		var types []graph.NodeType
		for _, part := range strings.Split(value, ",") {
			t, err := graph.ParseNodeType(strings.ToUpper(strings.TrimSpace(part)))
			if err != nil {
				return err
			}
			types = append(types, t)
		}
		c.filters.NodeTypes = types
	case "phase":
		phase, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid phase: %q", value)
		}
		c.filters.Phase = phase
	case "deleted":
		c.filters.ShowDeleted = value == "true"
	case "search":
		c.filters.SearchTerm = value
	default:
		return fmt.Errorf("unknown filter: %q", key)
	}
	return nil
}

// ClearFilters resets every filter.
func (c *Controller) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = Filters{}
}

// Select adds semantic IDs to the selection set.
func (c *Controller) Select(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.selection[id] = true
	}
}

// ClearSelection empties the selection set.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = make(map[string]bool)
}

// Focus sets the focus node.
func (c *Controller) Focus(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusID = id
}

// HandleCommand executes one slash-command and returns the user-facing
// reply. Unknown commands are an error.
func (c *Controller) HandleCommand(command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "/view":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: /view hierarchy|allocation|traceability|dependency|fchain|all")
		}
		if err := c.SetView(fields[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("view: %s", fields[1]), nil
	case "/filter":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: /filter key=value [key=value ...]")
		}
		for _, token := range fields[1:] {
			key, value, ok := strings.Cut(token, "=")
			if !ok {
				return "", fmt.Errorf("invalid filter token: %q", token)
			}
			if err := c.SetFilter(key, value); err != nil {
				return "", err
			}
		}
		return "filters updated", nil
	case "/select":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: /select <semanticId> [...]")
		}
		c.Select(fields[1:]...)
		return fmt.Sprintf("selected %d node(s)", len(fields)-1), nil
	case "/focus":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: /focus <semanticId>")
		}
		c.Focus(fields[1])
		return fmt.Sprintf("focus: %s", fields[1]), nil
	case "/clear-filter":
		c.ClearFilters()
		return "filters cleared", nil
	case "/clear-selection":
		c.ClearSelection()
		return "selection cleared", nil
	default:
		return "", fmt.Errorf("unknown command: %s", fields[0])
	}
}

// Render draws the current view from the data service.
func (c *Controller) Render() string {
	c.mu.Lock()
	opts := Options{
		View:      c.view,
		Filters:   c.filters,
		Selection: make(map[string]bool, len(c.selection)),
		FocusID:   c.focusID,
	}
	for id := range c.selection {
		opts.Selection[id] = true
	}
	c.mu.Unlock()
	return Render(c.svc.GetAllNodes(), c.svc.GetAllEdges(), opts)
}
