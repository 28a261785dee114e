//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the reference storage.Store used by tests and
// local single-process runs.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
	"trpc.group/trpc-go/semgraph/storage"
)

// ErrClosed is returned for operations on a store that is not connected.
var ErrClosed = errors.New("inmemory store is closed")

type workspaceKey struct {
	workspaceID string
	systemID    string
}

// Store keeps workspaces in process memory.
type Store struct {
	mu        sync.RWMutex
	connected bool
	nodes     map[workspaceKey]map[string]*graph.Node
	edges     map[workspaceKey]map[string]*graph.Edge
	messages  map[workspaceKey]map[string]*dataservice.Message
	audit     []*storage.AuditEntry
}

var _ storage.Store = (*Store)(nil)

// New creates an unconnected in-memory store.
func New() *Store {
	return &Store{
		nodes:    make(map[workspaceKey]map[string]*graph.Node),
		edges:    make(map[workspaceKey]map[string]*graph.Edge),
		messages: make(map[workspaceKey]map[string]*dataservice.Message),
	}
}

// Connect implements the storage.Store interface.
func (s *Store) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// Close implements the storage.Store interface.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// LoadWorkspace implements the storage.Store interface.
func (s *Store) LoadWorkspace(_ context.Context, workspaceID, systemID string) (*storage.WorkspaceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, ErrClosed
	}
	key := workspaceKey{workspaceID, systemID}
	state := &storage.WorkspaceState{}
	for _, n := range s.nodes[key] {
		state.Nodes = append(state.Nodes, n.Clone())
	}
	for _, e := range s.edges[key] {
		state.Edges = append(state.Edges, e.Clone())
	}
	for _, m := range s.messages[key] {
		clone := *m
		state.Messages = append(state.Messages, &clone)
	}
	return state, nil
}

// SaveNodes implements the storage.Store interface.
func (s *Store) SaveNodes(_ context.Context, workspaceID, systemID string, nodes []*graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrClosed
	}
	key := workspaceKey{workspaceID, systemID}
	if s.nodes[key] == nil {
		s.nodes[key] = make(map[string]*graph.Node)
	}
	for _, n := range nodes {
		s.nodes[key][n.SemanticID] = n.Clone()
	}
	return nil
}

// SaveEdges implements the storage.Store interface.
func (s *Store) SaveEdges(_ context.Context, workspaceID, systemID string, edges []*graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrClosed
	}
	key := workspaceKey{workspaceID, systemID}
	if s.edges[key] == nil {
		s.edges[key] = make(map[string]*graph.Edge)
	}
	for _, e := range edges {
		s.edges[key][e.Key().String()] = e.Clone()
	}
	return nil
}

// SaveMessages implements the storage.Store interface.
func (s *Store) SaveMessages(_ context.Context, workspaceID, systemID string, messages []*dataservice.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrClosed
	}
	key := workspaceKey{workspaceID, systemID}
	if s.messages[key] == nil {
		s.messages[key] = make(map[string]*dataservice.Message)
	}
	for _, m := range messages {
		clone := *m
		s.messages[key][m.MessageID] = &clone
	}
	return nil
}

// CreateAuditLog implements the storage.Store interface.
func (s *Store) CreateAuditLog(_ context.Context, entry *storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrClosed
	}
	clone := *entry
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now().UTC()
	}
	s.audit = append(s.audit, &clone)
	return nil
}

// AuditLog returns a copy of the audit entries, oldest first.
func (s *Store) AuditLog() []*storage.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
