//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package slicer classifies user requests and extracts the minimal subgraph
// that fits a prompt token budget.
package slicer

import (
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
)

// Task is the classified task tag of a user message.
type Task string

// Task tag constants, in classification priority order.
const (
	TaskDeriveTestcase    Task = "derive-testcase"
	TaskDetailUsecase     Task = "detail-usecase"
	TaskAllocateFunctions Task = "allocate-functions"
	TaskValidatePhase     Task = "validate-phase"
	TaskGeneral           Task = "general"
)

// taskKeywords maps task tags to their trigger keywords. Classification is
// by keyword on the lowercased message, priority top-down.
var taskKeywords = []struct {
	task     Task
	keywords []string
}{
	{TaskDeriveTestcase, []string{"test", "verify", "coverage", "testcase", "testfall"}},
	{TaskDetailUsecase, []string{"detail", "refine", "elaborate", "use case", "anwendungsfall"}},
	{TaskAllocateFunctions, []string{"allocate", "assign", "module", "zuweisen"}},
	{TaskValidatePhase, []string{"validate", "check", "phase", "validier"}},
}

// Classify returns the task tag for a user message.
func Classify(message string) Task {
	lower := strings.ToLower(message)
	for _, entry := range taskKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.task
			}
		}
	}
	return TaskGeneral
}

// Slice is the minimal subgraph passed as LLM context for a task.
type Slice struct {
	Task            Task          `json:"task"`
	FocusID         string        `json:"focusId,omitempty"`
	Depth           int           `json:"depth"`
	Nodes           []*graph.Node `json:"nodes"`
	Edges           []*graph.Edge `json:"edges"`
	EstimatedTokens int           `json:"estimatedTokens"`

	// ring records at which expansion distance each node joined the slice,
	// so pruning can drop the outermost nodes first.
	ring map[string]int
}

// Slicer extracts graph slices from the unified data service.
type Slicer struct {
	svc *dataservice.Service
}

// New creates a slicer over the given data service.
func New(svc *dataservice.Service) *Slicer {
	return &Slicer{svc: svc}
}

// Extract classifies the message and returns the slice for its task. The
// phase hint only affects the validate-phase strategy; a hint of 0 means
// every phase.
func (s *Slicer) Extract(message string, phaseHint int) *Slice {
	task := Classify(message)
	slice := &Slice{Task: task, ring: make(map[string]int)}
	all := s.svc.GetAllNodes()

	var seeds []*graph.Node
	switch task {
	case TaskDeriveTestcase:
		slice.Depth = 1
		seeds = nodesOfType(all, graph.NodeTypeRequirement, graph.NodeTypeSystem)
	case TaskDetailUsecase:
		slice.Depth = 2
		seeds = nodesOfType(all, graph.NodeTypeUseCase)
	case TaskAllocateFunctions:
		slice.Depth = 2
		seeds = nodesOfType(all, graph.NodeTypeFunction, graph.NodeTypeModule)
	case TaskValidatePhase:
		// No depth limit: expansion runs to a fixpoint.
		slice.Depth = len(all)
		for _, n := range all {
			if phaseHint == 0 || (n.Phase() > 0 && n.Phase() <= phaseHint) {
				seeds = append(seeds, n)
			}
		}
	default:
		slice.Depth = 3
		seeds = mentionedNodes(all, message)
		if len(seeds) == 0 {
			seeds = nodesOfType(all, graph.NodeTypeSystem)
		}
	}
	if len(seeds) > 0 {
		slice.FocusID = seeds[0].SemanticID
	}

	included := make(map[string]*graph.Node, len(seeds))
	for _, n := range seeds {
		included[n.SemanticID] = n
		slice.ring[n.SemanticID] = 0
	}
	s.expand(slice, included)
	s.collect(slice, included)
	slice.EstimatedTokens = EstimateTokens(slice)
	return slice
}

// expand grows the included set by one edge hop per iteration, up to the
// slice depth.
func (s *Slicer) expand(slice *Slice, included map[string]*graph.Node) {
	frontier := make([]string, 0, len(included))
	for id := range included {
		frontier = append(frontier, id)
	}
	sort.Strings(frontier)

	for depth := 1; depth <= slice.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, edge := range s.svc.GetEdgesFor(id, graph.DirectionBoth) {
				for _, neighborID := range []string{edge.SourceID, edge.TargetID} {
					if _, ok := included[neighborID]; ok {
						continue
					}
					neighbor, ok := s.svc.GetNode(neighborID)
					if !ok {
						continue
					}
					included[neighborID] = neighbor
					slice.ring[neighborID] = depth
					next = append(next, neighborID)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}
}

// collect materializes the node list and every edge whose both endpoints are
// included.
func (s *Slicer) collect(slice *Slice, included map[string]*graph.Node) {
	slice.Nodes = slice.Nodes[:0]
	for _, n := range included {
		slice.Nodes = append(slice.Nodes, n)
	}
	sort.Slice(slice.Nodes, func(i, j int) bool { return slice.Nodes[i].SemanticID < slice.Nodes[j].SemanticID })

	slice.Edges = slice.Edges[:0]
	seen := make(map[graph.EdgeKey]struct{})
	for _, n := range slice.Nodes {
		for _, edge := range s.svc.GetEdgesFor(n.SemanticID, graph.DirectionOut) {
			if _, ok := included[edge.TargetID]; !ok {
				continue
			}
			key := edge.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			slice.Edges = append(slice.Edges, edge)
		}
	}
	sort.Slice(slice.Edges, func(i, j int) bool { return slice.Edges[i].Key().String() < slice.Edges[j].Key().String() })
}

// PruneToFit shrinks the slice until its token estimate fits the budget,
// dropping the outermost expansion rings first. The depth floor is 1.
func (s *Slicer) PruneToFit(slice *Slice, budget int) {
	for slice.EstimatedTokens > budget && slice.Depth > 1 {
		slice.Depth--
		included := make(map[string]*graph.Node, len(slice.Nodes))
		for _, n := range slice.Nodes {
			if slice.ring[n.SemanticID] <= slice.Depth {
				included[n.SemanticID] = n
			} else {
				delete(slice.ring, n.SemanticID)
			}
		}
		s.collect(slice, included)
		slice.EstimatedTokens = EstimateTokens(slice)
	}
}

// EstimateTokens approximates the prompt cost of a slice as one token per
// four serialized characters, rounded up.
func EstimateTokens(slice *Slice) int {
	chars := len(Serialize(slice))
	return (chars + 3) / 4
}

// Serialize renders the slice for LLM consumption: nodes grouped by type
// followed by a relationships list. This is a human-readable section, not
// Format E.
func Serialize(slice *Slice) string {
	byType := make(map[graph.NodeType][]*graph.Node)
	for _, n := range slice.Nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "## %s\n", t)
		for _, n := range byType[graph.NodeType(t)] {
			fmt.Fprintf(&b, "- %s: %s\n", n.SemanticID, n.Description)
		}
	}
	if len(slice.Edges) > 0 {
		b.WriteString("## Relationships\n")
		for _, e := range slice.Edges {
			fmt.Fprintf(&b, "- %s -%s-> %s\n", e.SourceID, e.Type, e.TargetID)
		}
	}
	return b.String()
}

func nodesOfType(nodes []*graph.Node, types ...graph.NodeType) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		for _, t := range types {
			if n.Type == t {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// mentionedNodes finds nodes whose semantic ID or name appears in the
// message, case-insensitively.
func mentionedNodes(nodes []*graph.Node, message string) []*graph.Node {
	lower := strings.ToLower(message)
	var out []*graph.Node
	for _, n := range nodes {
		if strings.Contains(lower, strings.ToLower(n.SemanticID)) ||
			(n.Name != "" && strings.Contains(lower, strings.ToLower(n.Name))) {
			out = append(out, n)
		}
	}
	return out
}
