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
	"errors"
	"fmt"
)

// ErrDiffRejected wraps the per-operation reasons of a rejected diff.
var ErrDiffRejected = errors.New("diff rejected")

// DuplicateSemanticIDError reports a strict-mode node insert whose semantic ID
// is already present.
type DuplicateSemanticIDError struct {
	SemanticID string
}

// Error implements the error interface.
func (e *DuplicateSemanticIDError) Error() string {
	return fmt.Sprintf("duplicate semantic ID: %s", e.SemanticID)
}

// DuplicateEdgeError reports a strict-mode edge insert whose composite key is
// already present.
type DuplicateEdgeError struct {
	Key EdgeKey
}

// Error implements the error interface.
func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge: %s", e.Key)
}

// NodeNotFoundError reports an operation referencing a missing node.
type NodeNotFoundError struct {
	SemanticID string
}

// Error implements the error interface.
func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("Node not found: %s", e.SemanticID)
}

// EdgeNotFoundError reports an operation referencing a missing edge, either
// by composite key or by internal UUID.
type EdgeNotFoundError struct {
	Key  EdgeKey
	UUID string
}

// Error implements the error interface.
func (e *EdgeNotFoundError) Error() string {
	if e.UUID != "" {
		return fmt.Sprintf("Edge not found: %s", e.UUID)
	}
	return fmt.Sprintf("Edge not found: %s", e.Key)
}
