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
	"sort"
	"sync"
	"time"

	"trpc.group/trpc-go/semgraph/log"
)

// ChangeEvent describes a successful mutation. It is delivered to subscribers
// strictly after the store is in the post-mutation state.
type ChangeEvent struct {
	Kind    OpKind   `json:"kind"`
	NodeID  string   `json:"nodeId,omitempty"`
	EdgeKey *EdgeKey `json:"edgeKey,omitempty"`
	Version int64    `json:"version"`
}

// ChangeHandler receives change events. Handlers are called synchronously in
// registration order; panics are recovered and logged, never propagated to
// the writer.
type ChangeHandler func(ChangeEvent)

// DirtySet is a snapshot of the identifiers changed since the last successful
// persistence.
type DirtySet struct {
	Nodes   []string  `json:"nodes"`
	Edges   []EdgeKey `json:"edges"`
	Version int64     `json:"version"`
}

// Empty reports whether the set contains no identifiers.
func (d DirtySet) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// Store is the in-memory typed graph store. Writes are serialized per store
// instance; reads during a write see either the pre- or post-state but never
// a half-applied write.
type Store struct {
	mu sync.RWMutex

	nodes    map[string]*Node
	edges    map[EdgeKey]*Edge
	edgeByID map[string]EdgeKey
	outgoing map[string][]*Edge
	incoming map[string][]*Edge

	version          int64
	lastSavedVersion int64

	dirtyNodes map[string]struct{}
	dirtyEdges map[EdgeKey]struct{}

	handlerMu sync.RWMutex
	handlers  []ChangeHandler
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.nodes = make(map[string]*Node)
	s.edges = make(map[EdgeKey]*Edge)
	s.edgeByID = make(map[string]EdgeKey)
	s.outgoing = make(map[string][]*Edge)
	s.incoming = make(map[string][]*Edge)
	s.dirtyNodes = make(map[string]struct{})
	s.dirtyEdges = make(map[EdgeKey]struct{})
}

// OnChange registers a change handler. Handlers are invoked in registration
// order.
func (s *Store) OnChange(handler ChangeHandler) {
	if handler == nil {
		return
	}
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// emit delivers events outside the store lock so that handlers may read back
// from the store.
func (s *Store) emit(events []ChangeEvent) {
	if len(events) == 0 {
		return
	}
	s.handlerMu.RLock()
	handlers := make([]ChangeHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlerMu.RUnlock()

	for _, evt := range events {
		for _, h := range handlers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("graph change handler panicked: %v", r)
					}
				}()
				h(evt)
			}()
		}
	}
}

// GetVersion returns the current version counter.
func (s *Store) GetVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LastSavedVersion returns the version most recently persisted.
func (s *Store) LastSavedVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSavedVersion
}

// GetNode returns a copy of the node with the given semantic ID.
func (s *Store) GetNode(semanticID string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[semanticID]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// GetAllNodes returns copies of all nodes sorted by semantic ID.
func (s *Store) GetAllNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].SemanticID < nodes[j].SemanticID })
	return nodes
}

// GetEdge returns a copy of the edge with the given composite key.
func (s *Store) GetEdge(sourceID string, typ EdgeType, targetID string) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[EdgeKey{SourceID: sourceID, Type: typ, TargetID: targetID}]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// GetAllEdges returns copies of all edges sorted by composite key.
func (s *Store) GetAllEdges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allEdgesLocked()
}

func (s *Store) allEdgesLocked() []*Edge {
	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e.Clone())
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().String() < edges[j].Key().String() })
	return edges
}

// GetEdgesFor returns copies of the edges adjacent to the given node in the
// requested direction.
func (s *Store) GetEdgesFor(semanticID string, direction Direction) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var edges []*Edge
	switch direction {
	case DirectionOut:
		edges = s.outgoing[semanticID]
	case DirectionIn:
		edges = s.incoming[semanticID]
	case DirectionBoth:
		edges = append(append([]*Edge{}, s.outgoing[semanticID]...), s.incoming[semanticID]...)
	}
	out := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Clone())
	}
	return out
}

// ToState returns a snapshot copy of the graph contents.
func (s *Store) ToState() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].SemanticID < nodes[j].SemanticID })
	return &State{
		Nodes:   nodes,
		Edges:   s.allEdgesLocked(),
		Version: s.version,
	}
}

// LoadFromState replaces the store contents with the given snapshot. The
// version counter is taken from the snapshot and dirty tracking is cleared.
// No change events are emitted for a bulk load.
func (s *Store) LoadFromState(state *State) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	for _, n := range state.Nodes {
		if !n.Type.IsValid() {
			return &NodeNotFoundError{SemanticID: n.SemanticID}
		}
		s.nodes[n.SemanticID] = n.Clone()
	}
	for _, e := range state.Edges {
		if _, ok := s.nodes[e.SourceID]; !ok {
			return &NodeNotFoundError{SemanticID: e.SourceID}
		}
		if _, ok := s.nodes[e.TargetID]; !ok {
			return &NodeNotFoundError{SemanticID: e.TargetID}
		}
		s.insertEdgeLocked(e.Clone())
	}
	s.version = state.Version
	s.lastSavedVersion = state.Version
	return nil
}

// Clear removes all nodes and edges and resets dirty tracking. The version
// counter is preserved so that it stays monotonic within a process.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// SetNode inserts or, when upsert is true, replaces a node. The version
// counter increments on success either way.
func (s *Store) SetNode(node *Node, upsert bool) error {
	if node == nil || !node.Type.IsValid() {
		return &NodeNotFoundError{SemanticID: nodeID(node)}
	}
	s.mu.Lock()
	evt, err := s.setNodeLocked(node, upsert)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit([]ChangeEvent{evt})
	return nil
}

func nodeID(n *Node) string {
	if n == nil {
		return ""
	}
	return n.SemanticID
}

func (s *Store) setNodeLocked(node *Node, upsert bool) (ChangeEvent, error) {
	kind := OpAdd
	if existing, ok := s.nodes[node.SemanticID]; ok {
		if !upsert {
			return ChangeEvent{}, &DuplicateSemanticIDError{SemanticID: node.SemanticID}
		}
		kind = OpUpdate
		clone := node.Clone()
		clone.UUID = existing.UUID
		clone.CreatedAt = existing.CreatedAt
		clone.UpdatedAt = time.Now().UTC()
		s.nodes[node.SemanticID] = clone
	} else {
		s.nodes[node.SemanticID] = node.Clone()
	}
	s.version++
	s.dirtyNodes[node.SemanticID] = struct{}{}
	return ChangeEvent{Kind: kind, NodeID: node.SemanticID, Version: s.version}, nil
}

// DeleteNode removes a node. Dangling edges are left in place; they will be
// rejected by validation on the next diff application unless removed too.
func (s *Store) DeleteNode(semanticID string) error {
	s.mu.Lock()
	evt, err := s.deleteNodeLocked(semanticID)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit([]ChangeEvent{evt})
	return nil
}

func (s *Store) deleteNodeLocked(semanticID string) (ChangeEvent, error) {
	if _, ok := s.nodes[semanticID]; !ok {
		return ChangeEvent{}, &NodeNotFoundError{SemanticID: semanticID}
	}
	delete(s.nodes, semanticID)
	s.version++
	s.dirtyNodes[semanticID] = struct{}{}
	return ChangeEvent{Kind: OpRemove, NodeID: semanticID, Version: s.version}, nil
}

// SetEdge inserts or, when upsert is true, replaces an edge. Both endpoints
// must exist in the store.
func (s *Store) SetEdge(edge *Edge, upsert bool) error {
	if edge == nil || !edge.Type.IsValid() {
		return &EdgeNotFoundError{}
	}
	s.mu.Lock()
	evt, err := s.setEdgeLocked(edge, upsert)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit([]ChangeEvent{evt})
	return nil
}

func (s *Store) setEdgeLocked(edge *Edge, upsert bool) (ChangeEvent, error) {
	if _, ok := s.nodes[edge.SourceID]; !ok {
		return ChangeEvent{}, &NodeNotFoundError{SemanticID: edge.SourceID}
	}
	if _, ok := s.nodes[edge.TargetID]; !ok {
		return ChangeEvent{}, &NodeNotFoundError{SemanticID: edge.TargetID}
	}
	key := edge.Key()
	kind := OpAdd
	if existing, ok := s.edges[key]; ok {
		if !upsert {
			return ChangeEvent{}, &DuplicateEdgeError{Key: key}
		}
		kind = OpUpdate
		s.removeEdgeLocked(existing)
	}
	s.insertEdgeLocked(edge.Clone())
	s.version++
	s.dirtyEdges[key] = struct{}{}
	k := key
	return ChangeEvent{Kind: kind, EdgeKey: &k, Version: s.version}, nil
}

// DeleteEdge removes an edge by its internal UUID.
func (s *Store) DeleteEdge(uuid string) error {
	s.mu.Lock()
	evt, err := s.deleteEdgeByUUIDLocked(uuid)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit([]ChangeEvent{evt})
	return nil
}

func (s *Store) deleteEdgeByUUIDLocked(uuid string) (ChangeEvent, error) {
	key, ok := s.edgeByID[uuid]
	if !ok {
		return ChangeEvent{}, &EdgeNotFoundError{UUID: uuid}
	}
	return s.deleteEdgeLocked(key)
}

func (s *Store) deleteEdgeLocked(key EdgeKey) (ChangeEvent, error) {
	edge, ok := s.edges[key]
	if !ok {
		return ChangeEvent{}, &EdgeNotFoundError{Key: key}
	}
	s.removeEdgeLocked(edge)
	s.version++
	s.dirtyEdges[key] = struct{}{}
	k := key
	return ChangeEvent{Kind: OpRemove, EdgeKey: &k, Version: s.version}, nil
}

func (s *Store) insertEdgeLocked(edge *Edge) {
	key := edge.Key()
	s.edges[key] = edge
	s.edgeByID[edge.UUID] = key
	s.outgoing[edge.SourceID] = append(s.outgoing[edge.SourceID], edge)
	s.incoming[edge.TargetID] = append(s.incoming[edge.TargetID], edge)
}

func (s *Store) removeEdgeLocked(edge *Edge) {
	key := edge.Key()
	delete(s.edges, key)
	delete(s.edgeByID, edge.UUID)
	s.outgoing[edge.SourceID] = removeEdgeFromSlice(s.outgoing[edge.SourceID], key)
	s.incoming[edge.TargetID] = removeEdgeFromSlice(s.incoming[edge.TargetID], key)
}

func removeEdgeFromSlice(edges []*Edge, key EdgeKey) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.Key() != key {
			out = append(out, e)
		}
	}
	return out
}

// SnapshotDirty returns a copy of the dirty identifiers and the current
// version. Persistence snapshots the set before writing.
func (s *Store) SnapshotDirty() DirtySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := DirtySet{Version: s.version}
	for id := range s.dirtyNodes {
		set.Nodes = append(set.Nodes, id)
	}
	for key := range s.dirtyEdges {
		set.Edges = append(set.Edges, key)
	}
	sort.Strings(set.Nodes)
	sort.Slice(set.Edges, func(i, j int) bool { return set.Edges[i].String() < set.Edges[j].String() })
	return set
}

// ClearDirty removes exactly the identifiers in the given snapshot from the
// dirty set and records the persisted version. Items mutated again after the
// snapshot was taken stay dirty.
func (s *Store) ClearDirty(set DirtySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range set.Nodes {
		delete(s.dirtyNodes, id)
	}
	for _, key := range set.Edges {
		delete(s.dirtyEdges, key)
	}
	if set.Version > s.lastSavedVersion {
		s.lastSavedVersion = set.Version
	}
}
