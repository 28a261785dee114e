//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package graph

// OpKind is the closed set of diff operation kinds.
type OpKind string

// Operation kind constants.
const (
	OpAdd    OpKind = "add"
	OpRemove OpKind = "remove"
	OpUpdate OpKind = "update"
)

// NodeOp is a single node operation inside a diff.
type NodeOp struct {
	Op          OpKind         `json:"op"`
	SemanticID  string         `json:"semanticId"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EdgeOp is a single edge operation inside a diff.
type EdgeOp struct {
	Op       OpKind   `json:"op"`
	SourceID string   `json:"sourceId"`
	Type     EdgeType `json:"type"`
	TargetID string   `json:"targetId"`
}

// Key returns the composite identity the operation refers to.
func (op EdgeOp) Key() EdgeKey {
	return EdgeKey{SourceID: op.SourceID, Type: op.Type, TargetID: op.TargetID}
}

// Diff is a parsed operations block: an advisory base snapshot, an optional
// view context, and ordered node and edge operations. Operations apply
// top-to-bottom, nodes before edges.
type Diff struct {
	BaseSnapshot string   `json:"baseSnapshot,omitempty"`
	ViewContext  string   `json:"viewContext,omitempty"`
	NodeOps      []NodeOp `json:"nodeOps"`
	EdgeOps      []EdgeOp `json:"edgeOps"`
}

// Empty reports whether the diff carries no operations.
func (d *Diff) Empty() bool {
	return d == nil || (len(d.NodeOps) == 0 && len(d.EdgeOps) == 0)
}

// OpCount returns the total number of operations in the diff.
func (d *Diff) OpCount() int {
	if d == nil {
		return 0
	}
	return len(d.NodeOps) + len(d.EdgeOps)
}
