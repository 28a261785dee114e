//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package formate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/semgraph/graph"
)

// SerializeDiff renders a diff back to Format E text. The output is
// deterministic: parsing it again yields a structurally equal diff.
func SerializeDiff(diff *graph.Diff) string {
	var b strings.Builder
	b.WriteString(OpenTag)
	b.WriteByte('\n')
	if diff.BaseSnapshot != "" {
		fmt.Fprintf(&b, "%s%s%s\n", baseSnapshotOpen, diff.BaseSnapshot, baseSnapshotClose)
	}
	if diff.ViewContext != "" {
		fmt.Fprintf(&b, "%s%s%s\n", viewContextOpen, diff.ViewContext, viewContextClose)
	}
	if len(diff.NodeOps) > 0 {
		b.WriteString(nodesSection)
		b.WriteByte('\n')
		for _, op := range diff.NodeOps {
			b.WriteString(serializeNodeOp(op))
			b.WriteByte('\n')
		}
	}
	if len(diff.EdgeOps) > 0 {
		b.WriteString(edgesSection)
		b.WriteByte('\n')
		for _, op := range diff.EdgeOps {
			b.WriteString(serializeEdgeOp(op))
			b.WriteByte('\n')
		}
	}
	b.WriteString(CloseTag)
	return b.String()
}

// SerializeGraph renders a full-graph snapshot as a diff containing only add
// operations: nodes first sorted by semantic ID, then edges sorted by
// composite key. Snapshots in Format E run roughly a quarter of the size of
// the equivalent JSON.
func SerializeGraph(state *graph.State, viewContext string) string {
	diff := &graph.Diff{ViewContext: viewContext}

	nodes := make([]*graph.Node, len(state.Nodes))
	copy(nodes, state.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].SemanticID < nodes[j].SemanticID })
	for _, n := range nodes {
		diff.NodeOps = append(diff.NodeOps, graph.NodeOp{
			Op:          graph.OpAdd,
			SemanticID:  n.SemanticID,
			Description: n.Description,
			Attributes:  n.Attributes,
		})
	}

	edges := make([]*graph.Edge, len(state.Edges))
	copy(edges, state.Edges)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().String() < edges[j].Key().String() })
	for _, e := range edges {
		diff.EdgeOps = append(diff.EdgeOps, graph.EdgeOp{
			Op:       graph.OpAdd,
			SourceID: e.SourceID,
			Type:     e.Type,
			TargetID: e.TargetID,
		})
	}
	return SerializeDiff(diff)
}

func opSign(kind graph.OpKind) string {
	switch kind {
	case graph.OpAdd:
		return "+"
	case graph.OpRemove:
		return "-"
	case graph.OpUpdate:
		return "~"
	}
	return "?"
}

func serializeNodeOp(op graph.NodeOp) string {
	var b strings.Builder
	b.WriteString(opSign(op.Op))
	b.WriteByte(' ')
	b.WriteString(op.SemanticID)
	if op.Op == graph.OpRemove {
		return b.String()
	}
	b.WriteByte('|')
	b.WriteString(op.Description)
	if len(op.Attributes) > 0 {
		b.WriteString(" [")
		b.WriteString(serializeAttributes(op.Attributes))
		b.WriteByte(']')
	}
	return b.String()
}

func serializeEdgeOp(op graph.EdgeOp) string {
	return fmt.Sprintf("%s %s -%s-> %s", opSign(op.Op), op.SourceID, Arrow(op.Type), op.TargetID)
}

// serializeAttributes renders attributes sorted by key. String values that
// would re-parse as JSON are quoted so the round trip is stable.
func serializeAttributes(attrs map[string]any) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k+":"+serializeAttributeValue(attrs[k]))
	}
	return strings.Join(entries, ", ")
}

func serializeAttributeValue(value any) string {
	if s, ok := value.(string); ok {
		var parsed any
		if json.Unmarshal([]byte(s), &parsed) != nil && !strings.ContainsAny(s, ",:[]") {
			return s
		}
		// The bare form would re-parse as JSON or break entry splitting, so
		// fall through to a quoted JSON string.
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
