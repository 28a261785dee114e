//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Node is a typed graph node. The semantic ID is the primary identifier; the
// UUID stays stable across renames.
type Node struct {
	UUID        string         `json:"uuid"`
	SemanticID  string         `json:"semanticId"`
	Type        NodeType       `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ParseSemanticID splits a semantic ID of the shape Name.TypeAbbr.NNN into
// its name and node type.
func ParseSemanticID(semanticID string) (name string, typ NodeType, err error) {
	parts := strings.Split(semanticID, ".")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid semantic ID: %q", semanticID)
	}
	typ, err = ParseNodeType(parts[len(parts)-2])
	if err != nil {
		return "", "", fmt.Errorf("invalid semantic ID %q: %w", semanticID, err)
	}
	return strings.Join(parts[:len(parts)-2], "."), typ, nil
}

// NewNode creates a node from a semantic ID, deriving name and type.
func NewNode(semanticID, description string, attributes map[string]any) (*Node, error) {
	name, typ, err := ParseSemanticID(semanticID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Node{
		UUID:        uuid.NewString(),
		SemanticID:  semanticID,
		Type:        typ,
		Name:        name,
		Description: description,
		Attributes:  attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Clone returns a deep copy of the node. Store reads hand out clones so that
// callers cannot mutate store-owned state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	if n.Attributes != nil {
		clone.Attributes = make(map[string]any, len(n.Attributes))
		for k, v := range n.Attributes {
			clone.Attributes[k] = v
		}
	}
	return &clone
}

// Phase returns the node's phase attribute, or 0 when unset or malformed.
func (n *Node) Phase() int {
	if n == nil || n.Attributes == nil {
		return 0
	}
	switch v := n.Attributes["phase"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// EdgeKey is the composite identity of an edge.
type EdgeKey struct {
	SourceID string   `json:"sourceId"`
	Type     EdgeType `json:"type"`
	TargetID string   `json:"targetId"`
}

// String renders the key in arrow form, e.g. "A.FN.001 -io-> B.FN.002".
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s -%s-> %s", k.SourceID, k.Type, k.TargetID)
}

// Edge is a directed typed edge between two nodes identified by semantic ID.
type Edge struct {
	UUID     string   `json:"uuid"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Type     EdgeType `json:"type"`
}

// NewEdge creates an edge with a fresh UUID.
func NewEdge(sourceID string, typ EdgeType, targetID string) *Edge {
	return &Edge{
		UUID:     uuid.NewString(),
		SourceID: sourceID,
		TargetID: targetID,
		Type:     typ,
	}
}

// Key returns the composite identity of the edge.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{SourceID: e.SourceID, Type: e.Type, TargetID: e.TargetID}
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// State is a snapshot copy of the graph contents.
type State struct {
	Nodes   []*Node `json:"nodes"`
	Edges   []*Edge `json:"edges"`
	Version int64   `json:"version"`
}
