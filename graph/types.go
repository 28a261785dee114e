//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the typed in-memory graph store for systems
// engineering models.
package graph

import "fmt"

// NodeType is the closed set of domain node types.
type NodeType string

// Node type constants.
const (
	NodeTypeSystem        NodeType = "SYS"
	NodeTypeUseCase       NodeType = "UC"
	NodeTypeActor         NodeType = "ACTOR"
	NodeTypeFunctionChain NodeType = "FCHAIN"
	NodeTypeFunction      NodeType = "FUNC"
	NodeTypeFlow          NodeType = "FLOW"
	NodeTypeRequirement   NodeType = "REQ"
	NodeTypeTestCase      NodeType = "TEST"
	NodeTypeModule        NodeType = "MOD"
	NodeTypeSchema        NodeType = "SCHEMA"
)

// nodeTypeAbbrs maps semantic ID abbreviations to node types. Full type tags
// are accepted as well, so both "Order.SY.001" and "Order.SYS.001" resolve to
// NodeTypeSystem.
var nodeTypeAbbrs = map[string]NodeType{
	"SY": NodeTypeSystem,
	"UC": NodeTypeUseCase,
	"AC": NodeTypeActor,
	"FC": NodeTypeFunctionChain,
	"FN": NodeTypeFunction,
	"FL": NodeTypeFlow,
	"RQ": NodeTypeRequirement,
	"TC": NodeTypeTestCase,
	"MD": NodeTypeModule,
	"SC": NodeTypeSchema,

	"SYS":    NodeTypeSystem,
	"ACTOR":  NodeTypeActor,
	"FCHAIN": NodeTypeFunctionChain,
	"FUNC":   NodeTypeFunction,
	"FLOW":   NodeTypeFlow,
	"REQ":    NodeTypeRequirement,
	"TEST":   NodeTypeTestCase,
	"MOD":    NodeTypeModule,
	"SCHEMA": NodeTypeSchema,
}

// ParseNodeType resolves a semantic ID type abbreviation to a NodeType.
func ParseNodeType(abbr string) (NodeType, error) {
	if t, ok := nodeTypeAbbrs[abbr]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown node type abbreviation: %q", abbr)
}

// String returns the string representation of the node type.
func (t NodeType) String() string {
	return string(t)
}

// IsValid checks if the node type is one of the defined constants.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeSystem, NodeTypeUseCase, NodeTypeActor, NodeTypeFunctionChain,
		NodeTypeFunction, NodeTypeFlow, NodeTypeRequirement, NodeTypeTestCase,
		NodeTypeModule, NodeTypeSchema:
		return true
	default:
		return false
	}
}

// EdgeType is the closed set of domain edge types.
type EdgeType string

// Edge type constants.
const (
	EdgeTypeCompose  EdgeType = "compose"
	EdgeTypeIO       EdgeType = "io"
	EdgeTypeSatisfy  EdgeType = "satisfy"
	EdgeTypeVerify   EdgeType = "verify"
	EdgeTypeAllocate EdgeType = "allocate"
	EdgeTypeRelation EdgeType = "relation"
)

// String returns the string representation of the edge type.
func (t EdgeType) String() string {
	return string(t)
}

// IsValid checks if the edge type is one of the defined constants.
func (t EdgeType) IsValid() bool {
	switch t {
	case EdgeTypeCompose, EdgeTypeIO, EdgeTypeSatisfy, EdgeTypeVerify,
		EdgeTypeAllocate, EdgeTypeRelation:
		return true
	default:
		return false
	}
}

// Direction selects which adjacency index GetEdgesFor consults.
type Direction string

// Direction constants.
const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)
