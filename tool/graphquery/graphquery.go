//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package graphquery implements the read-only graph_query tool the LLM uses
// to inspect the graph mid-response.
package graphquery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
	"trpc.group/trpc-go/semgraph/tool"
)

// ToolName is the name the tool is declared under.
const ToolName = "graph_query"

// Filters narrows a query. All present filters must match.
type Filters struct {
	SourceType string `json:"sourceType,omitempty"`
	TargetType string `json:"targetType,omitempty"`
	EdgeType   string `json:"edgeType,omitempty"`
	NodeType   string `json:"nodeType,omitempty"`
	SemanticID string `json:"semanticId,omitempty"`
	SourceID   string `json:"sourceId,omitempty"`
	TargetID   string `json:"targetId,omitempty"`
	FchainID   string `json:"fchainId,omitempty"`
}

type args struct {
	QueryType string  `json:"queryType"`
	Filters   Filters `json:"filters"`
}

// EdgeResult is an edge enriched with its endpoint node types.
type EdgeResult struct {
	SourceID   string         `json:"sourceId"`
	TargetID   string         `json:"targetId"`
	Type       graph.EdgeType `json:"type"`
	SourceType graph.NodeType `json:"sourceType,omitempty"`
	TargetType graph.NodeType `json:"targetType,omitempty"`
}

// CheckEdgeResult answers a check_edge query.
type CheckEdgeResult struct {
	Exists bool        `json:"exists"`
	Edge   *EdgeResult `json:"edge,omitempty"`
}

// ChainStep is one reconstructed io step of a functional chain.
type ChainStep struct {
	FromID string `json:"fromId"`
	FlowID string `json:"flowId"`
	ToID   string `json:"toId"`
}

// Issue flags a suspect pattern found while reconstructing an io chain.
type Issue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// IOChainResult answers an io_chain query.
type IOChainResult struct {
	FchainID string      `json:"fchainId"`
	Steps    []ChainStep `json:"steps"`
	Issues   []Issue     `json:"issues"`
}

// Tool executes graph queries against the data service. All queries are
// read-only.
type Tool struct {
	svc *dataservice.Service
}

// New creates the graph_query tool over the given data service.
func New(svc *dataservice.Service) *Tool {
	return &Tool{svc: svc}
}

// Declaration implements the tool.Tool interface.
func (t *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: ToolName,
		Description: "Query the systems engineering graph. Supports listing edges or nodes " +
			"with filters, checking whether a specific edge exists, and reconstructing the " +
			"io chain of a functional chain with consistency issues.",
		InputSchema: &tool.Schema{
			Type:     "object",
			Required: []string{"queryType"},
			Properties: map[string]*tool.Schema{
				"queryType": {
					Type:        "string",
					Description: "The kind of query to run.",
					Enum:        []string{"edges", "nodes", "check_edge", "io_chain"},
				},
				"filters": {
					Type:        "object",
					Description: "Optional filters; every present filter must match.",
					Properties: map[string]*tool.Schema{
						"sourceType": {Type: "string", Description: "Node type of the edge source."},
						"targetType": {Type: "string", Description: "Node type of the edge target."},
						"edgeType":   {Type: "string", Description: "Edge type, e.g. compose or io."},
						"nodeType":   {Type: "string", Description: "Node type for nodes queries."},
						"semanticId": {Type: "string", Description: "Exact semantic ID."},
						"sourceId":   {Type: "string", Description: "Edge source semantic ID."},
						"targetId":   {Type: "string", Description: "Edge target semantic ID."},
						"fchainId":   {Type: "string", Description: "FCHAIN semantic ID for io_chain."},
					},
				},
			},
		},
	}
}

// Call implements the tool.CallableTool interface.
func (t *Tool) Call(_ context.Context, jsonArgs []byte) (any, error) {
	var a args
	if err := json.Unmarshal(jsonArgs, &a); err != nil {
		return nil, fmt.Errorf("invalid graph_query arguments: %w", err)
	}
	switch a.QueryType {
	case "edges":
		return t.queryEdges(a.Filters), nil
	case "nodes":
		return t.queryNodes(a.Filters), nil
	case "check_edge":
		return t.checkEdge(a.Filters)
	case "io_chain":
		return t.ioChain(a.Filters)
	default:
		return nil, fmt.Errorf("unknown queryType: %q", a.QueryType)
	}
}

func (t *Tool) queryEdges(f Filters) []EdgeResult {
	results := []EdgeResult{}
	for _, edge := range t.svc.GetAllEdges() {
		result, ok := t.enrich(edge)
		if !ok {
			continue
		}
		if f.EdgeType != "" && string(edge.Type) != f.EdgeType {
			continue
		}
		if f.SourceID != "" && edge.SourceID != f.SourceID {
			continue
		}
		if f.TargetID != "" && edge.TargetID != f.TargetID {
			continue
		}
		if f.SourceType != "" && string(result.SourceType) != f.SourceType {
			continue
		}
		if f.TargetType != "" && string(result.TargetType) != f.TargetType {
			continue
		}
		results = append(results, result)
	}
	return results
}

// enrich resolves the endpoint node types of an edge.
func (t *Tool) enrich(edge *graph.Edge) (EdgeResult, bool) {
	result := EdgeResult{SourceID: edge.SourceID, TargetID: edge.TargetID, Type: edge.Type}
	if source, ok := t.svc.GetNode(edge.SourceID); ok {
		result.SourceType = source.Type
	}
	if target, ok := t.svc.GetNode(edge.TargetID); ok {
		result.TargetType = target.Type
	}
	return result, true
}

func (t *Tool) queryNodes(f Filters) []*graph.Node {
	results := []*graph.Node{}
	for _, node := range t.svc.GetAllNodes() {
		if f.NodeType != "" && string(node.Type) != f.NodeType {
			continue
		}
		if f.SemanticID != "" && node.SemanticID != f.SemanticID {
			continue
		}
		results = append(results, node)
	}
	return results
}

func (t *Tool) checkEdge(f Filters) (any, error) {
	if f.SourceID == "" || f.TargetID == "" {
		return nil, fmt.Errorf("check_edge requires sourceId and targetId filters")
	}
	for _, edge := range t.svc.GetEdgesFor(f.SourceID, graph.DirectionOut) {
		if edge.TargetID != f.TargetID {
			continue
		}
		if f.EdgeType != "" && string(edge.Type) != f.EdgeType {
			continue
		}
		result, _ := t.enrich(edge)
		return CheckEdgeResult{Exists: true, Edge: &result}, nil
	}
	return CheckEdgeResult{Exists: false}, nil
}

// ioChain expands the FCHAIN's children via compose edges, then reconstructs
// the ordered (from, flow, to) steps from the io edges among them and flags
// bidirectional, circular, and duplicate patterns.
func (t *Tool) ioChain(f Filters) (any, error) {
	if f.FchainID == "" {
		return nil, fmt.Errorf("io_chain requires the fchainId filter")
	}
	fchain, ok := t.svc.GetNode(f.FchainID)
	if !ok {
		return nil, fmt.Errorf("fchain not found: %s", f.FchainID)
	}
	if fchain.Type != graph.NodeTypeFunctionChain {
		return nil, fmt.Errorf("%s is a %s, not a %s", f.FchainID, fchain.Type, graph.NodeTypeFunctionChain)
	}

	members := make(map[string]bool)
	for _, edge := range t.svc.GetEdgesFor(f.FchainID, graph.DirectionOut) {
		if edge.Type == graph.EdgeTypeCompose {
			members[edge.TargetID] = true
		}
	}

	// writers[flow] and readers[flow] hold the member functions around each
	// FLOW touched by the chain.
	writers := make(map[string][]string)
	readers := make(map[string][]string)
	for memberID := range members {
		for _, edge := range t.svc.GetEdgesFor(memberID, graph.DirectionBoth) {
			if edge.Type != graph.EdgeTypeIO {
				continue
			}
			if edge.SourceID == memberID {
				writers[edge.TargetID] = append(writers[edge.TargetID], memberID)
			} else {
				readers[edge.SourceID] = append(readers[edge.SourceID], memberID)
			}
		}
	}

	result := IOChainResult{FchainID: f.FchainID, Steps: []ChainStep{}, Issues: []Issue{}}
	seenStep := make(map[ChainStep]bool)
	for _, flowID := range sortedKeys(writers, readers) {
		for _, from := range writers[flowID] {
			for _, to := range readers[flowID] {
				step := ChainStep{FromID: from, FlowID: flowID, ToID: to}
				if seenStep[step] {
					continue
				}
				seenStep[step] = true
			}
		}
	}
	for step := range seenStep {
		if step.FromID == step.ToID {
			result.Issues = append(result.Issues, Issue{
				Type:        "circular",
				Description: fmt.Sprintf("%s both writes and reads %s", step.FromID, step.FlowID),
			})
			continue
		}
		reverse := ChainStep{FromID: step.ToID, FlowID: step.FlowID, ToID: step.FromID}
		if seenStep[reverse] && step.FromID < step.ToID {
			result.Issues = append(result.Issues, Issue{
				Type:        "bidirectional",
				Description: fmt.Sprintf("%s and %s exchange %s in both directions", step.FromID, step.ToID, step.FlowID),
			})
		}
		result.Steps = append(result.Steps, step)
	}
	// The same ordered function pair connected through more than one FLOW is
	// a modelling duplicate.
	pairFlows := make(map[[2]string][]string)
	for step := range seenStep {
		if step.FromID == step.ToID {
			continue
		}
		pair := [2]string{step.FromID, step.ToID}
		pairFlows[pair] = append(pairFlows[pair], step.FlowID)
	}
	for pair, flows := range pairFlows {
		if len(flows) > 1 {
			sort.Strings(flows)
			result.Issues = append(result.Issues, Issue{
				Type:        "duplicate",
				Description: fmt.Sprintf("%s feeds %s through multiple flows: %s", pair[0], pair[1], strings.Join(flows, ", ")),
			})
		}
	}
	orderSteps(result.Steps)
	sort.Slice(result.Issues, func(i, j int) bool {
		if result.Issues[i].Type != result.Issues[j].Type {
			return result.Issues[i].Type < result.Issues[j].Type
		}
		return result.Issues[i].Description < result.Issues[j].Description
	})
	return result, nil
}

// orderSteps sorts steps so that producers precede their consumers where the
// flow is acyclic, with a deterministic tie-break.
func orderSteps(steps []ChainStep) {
	produces := make(map[string]int)
	for _, step := range steps {
		produces[step.ToID]++
	}
	sort.SliceStable(steps, func(i, j int) bool {
		// Functions nobody feeds come first.
		si, sj := produces[steps[i].FromID], produces[steps[j].FromID]
		if si != sj {
			return si < sj
		}
		if steps[i].FromID != steps[j].FromID {
			return steps[i].FromID < steps[j].FromID
		}
		if steps[i].FlowID != steps[j].FlowID {
			return steps[i].FlowID < steps[j].FlowID
		}
		return steps[i].ToID < steps[j].ToID
	})
}

func sortedKeys(maps ...map[string][]string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
