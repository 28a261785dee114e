//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package formate implements the Format E codec, the line-oriented textual
// diff language used as the wire format for all graph mutations.
package formate

import (
	"errors"
	"fmt"

	"trpc.group/trpc-go/semgraph/graph"
)

// Tag constants of the operations block envelope.
const (
	OpenTag  = "<operations>"
	CloseTag = "</operations>"

	baseSnapshotOpen  = "<base_snapshot>"
	baseSnapshotClose = "</base_snapshot>"
	viewContextOpen   = "<view_context>"
	viewContextClose  = "</view_context>"

	nodesSection = "## Nodes"
	edgesSection = "## Edges"
)

// ErrInvalidLine reports a syntactically invalid diff line.
var ErrInvalidLine = errors.New("invalid diff line")

// arrowToEdgeType maps the compact arrow labels to edge types.
var arrowToEdgeType = map[string]graph.EdgeType{
	"cp":  graph.EdgeTypeCompose,
	"io":  graph.EdgeTypeIO,
	"sat": graph.EdgeTypeSatisfy,
	"ver": graph.EdgeTypeVerify,
	"alc": graph.EdgeTypeAllocate,
	"rel": graph.EdgeTypeRelation,
}

// edgeTypeToArrow is the reverse of arrowToEdgeType.
var edgeTypeToArrow = map[graph.EdgeType]string{
	graph.EdgeTypeCompose:  "cp",
	graph.EdgeTypeIO:       "io",
	graph.EdgeTypeSatisfy:  "sat",
	graph.EdgeTypeVerify:   "ver",
	graph.EdgeTypeAllocate: "alc",
	graph.EdgeTypeRelation: "rel",
}

// ParseArrow resolves a compact arrow label to an edge type.
func ParseArrow(arrow string) (graph.EdgeType, error) {
	if t, ok := arrowToEdgeType[arrow]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown edge arrow: %q", arrow)
}

// Arrow returns the compact arrow label for an edge type.
func Arrow(t graph.EdgeType) string {
	return edgeTypeToArrow[t]
}
