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
)

// ApplyOptions contains options for ApplyDiff.
type ApplyOptions struct {
	// Upsert makes node and edge adds replace existing entries instead of
	// failing with a duplicate error.
	Upsert bool
}

// ApplyOption is an option for ApplyDiff.
type ApplyOption func(*ApplyOptions)

// WithUpsert enables upsert mode for add operations.
func WithUpsert() ApplyOption {
	return func(o *ApplyOptions) {
		o.Upsert = true
	}
}

// OpReason explains why a single operation in a rejected diff failed.
type OpReason struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// ApplyResult reports the outcome of a diff application.
type ApplyResult struct {
	Applied int        `json:"applied"`
	Version int64      `json:"version"`
	Reasons []OpReason `json:"reasons,omitempty"`
}

// ApplyDiff validates and applies a diff atomically: either every operation
// succeeds and the store moves to the post-diff state, or nothing is applied
// and neither the graph nor the dirty set is modified. Operations apply
// top-to-bottom, the node section before the edge section.
func (s *Store) ApplyDiff(diff *Diff, opts ...ApplyOption) (*ApplyResult, error) {
	options := &ApplyOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if diff.Empty() {
		s.mu.RLock()
		version := s.version
		s.mu.RUnlock()
		return &ApplyResult{Version: version}, nil
	}

	s.mu.Lock()
	reasons := s.validateDiffLocked(diff, options)
	if len(reasons) > 0 {
		result := &ApplyResult{Version: s.version, Reasons: reasons}
		s.mu.Unlock()
		return result, fmt.Errorf("%w: %s", ErrDiffRejected, reasons[0].Reason)
	}
	events, err := s.commitDiffLocked(diff, options)
	result := &ApplyResult{Applied: len(events), Version: s.version}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.emit(events)
	return result, nil
}

// validateDiffLocked dry-runs the diff against a pending view of the store
// and collects every failing operation.
func (s *Store) validateDiffLocked(diff *Diff, options *ApplyOptions) []OpReason {
	var reasons []OpReason

	// Pending node view: store contents plus earlier adds, minus earlier
	// removes, within this batch.
	pendingNodes := make(map[string]bool, len(diff.NodeOps))
	nodeExists := func(id string) bool {
		if present, ok := pendingNodes[id]; ok {
			return present
		}
		_, ok := s.nodes[id]
		return ok
	}
	pendingEdges := make(map[EdgeKey]bool, len(diff.EdgeOps))
	edgeExists := func(key EdgeKey) bool {
		if present, ok := pendingEdges[key]; ok {
			return present
		}
		_, ok := s.edges[key]
		return ok
	}

	index := 0
	for _, op := range diff.NodeOps {
		switch op.Op {
		case OpAdd:
			if _, _, err := ParseSemanticID(op.SemanticID); err != nil {
				reasons = append(reasons, OpReason{Index: index, Op: describeNodeOp(op), Reason: err.Error()})
				break
			}
			if nodeExists(op.SemanticID) && !options.Upsert {
				reasons = append(reasons, OpReason{
					Index: index, Op: describeNodeOp(op),
					Reason: (&DuplicateSemanticIDError{SemanticID: op.SemanticID}).Error(),
				})
				break
			}
			pendingNodes[op.SemanticID] = true
		case OpUpdate:
			if !nodeExists(op.SemanticID) {
				reasons = append(reasons, OpReason{
					Index: index, Op: describeNodeOp(op),
					Reason: (&NodeNotFoundError{SemanticID: op.SemanticID}).Error(),
				})
			}
		case OpRemove:
			if !nodeExists(op.SemanticID) {
				reasons = append(reasons, OpReason{
					Index: index, Op: describeNodeOp(op),
					Reason: (&NodeNotFoundError{SemanticID: op.SemanticID}).Error(),
				})
				break
			}
			pendingNodes[op.SemanticID] = false
		default:
			reasons = append(reasons, OpReason{Index: index, Op: describeNodeOp(op), Reason: fmt.Sprintf("unknown operation kind: %s", op.Op)})
		}
		index++
	}

	for _, op := range diff.EdgeOps {
		key := op.Key()
		switch op.Op {
		case OpAdd:
			if !op.Type.IsValid() {
				reasons = append(reasons, OpReason{Index: index, Op: key.String(), Reason: fmt.Sprintf("unknown edge type: %s", op.Type)})
				break
			}
			if !nodeExists(op.SourceID) {
				reasons = append(reasons, OpReason{
					Index: index, Op: key.String(),
					Reason: (&NodeNotFoundError{SemanticID: op.SourceID}).Error(),
				})
				break
			}
			if !nodeExists(op.TargetID) {
				reasons = append(reasons, OpReason{
					Index: index, Op: key.String(),
					Reason: (&NodeNotFoundError{SemanticID: op.TargetID}).Error(),
				})
				break
			}
			if edgeExists(key) && !options.Upsert {
				reasons = append(reasons, OpReason{
					Index: index, Op: key.String(),
					Reason: (&DuplicateEdgeError{Key: key}).Error(),
				})
				break
			}
			pendingEdges[key] = true
		case OpRemove:
			if !edgeExists(key) {
				reasons = append(reasons, OpReason{
					Index: index, Op: key.String(),
					Reason: (&EdgeNotFoundError{Key: key}).Error(),
				})
				break
			}
			pendingEdges[key] = false
		default:
			reasons = append(reasons, OpReason{Index: index, Op: key.String(), Reason: fmt.Sprintf("unknown operation kind: %s", op.Op)})
		}
		index++
	}
	return reasons
}

// commitDiffLocked applies a validated diff. The caller holds the write lock.
func (s *Store) commitDiffLocked(diff *Diff, options *ApplyOptions) ([]ChangeEvent, error) {
	events := make([]ChangeEvent, 0, diff.OpCount())
	for _, op := range diff.NodeOps {
		switch op.Op {
		case OpAdd:
			node, err := NewNode(op.SemanticID, op.Description, op.Attributes)
			if err != nil {
				return nil, err
			}
			evt, err := s.setNodeLocked(node, options.Upsert)
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		case OpUpdate:
			existing := s.nodes[op.SemanticID].Clone()
			if op.Description != "" {
				existing.Description = op.Description
			}
			for k, v := range op.Attributes {
				if existing.Attributes == nil {
					existing.Attributes = make(map[string]any)
				}
				existing.Attributes[k] = v
			}
			evt, err := s.setNodeLocked(existing, true)
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		case OpRemove:
			evt, err := s.deleteNodeLocked(op.SemanticID)
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		}
	}
	for _, op := range diff.EdgeOps {
		switch op.Op {
		case OpAdd:
			evt, err := s.setEdgeLocked(NewEdge(op.SourceID, op.Type, op.TargetID), options.Upsert)
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		case OpRemove:
			evt, err := s.deleteEdgeLocked(op.Key())
			if err != nil {
				return nil, err
			}
			events = append(events, evt)
		}
	}
	return events, nil
}

func describeNodeOp(op NodeOp) string {
	var sign string
	switch op.Op {
	case OpAdd:
		sign = "+"
	case OpRemove:
		sign = "-"
	case OpUpdate:
		sign = "~"
	}
	return strings.TrimSpace(sign + " " + op.SemanticID)
}
