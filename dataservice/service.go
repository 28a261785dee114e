//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package dataservice provides the unified data service: the single
// authoritative owner of graph state, response cache, episodic memory and
// chat messages for one workspace/system pair.
package dataservice

import (
	"sync"
	"time"

	"trpc.group/trpc-go/semgraph/graph"
)

// Key identifies the workspace/system pair a service instance belongs to.
type Key struct {
	WorkspaceID string // WorkspaceID is the workspace identifier.
	SystemID    string // SystemID is the system identifier.
}

// Service wraps the graph store and adds the response cache, the episodic
// memory and the chat message log. Exactly one instance exists per
// (workspace, system) pair in a process; use For to obtain it. All other
// components receive the instance by explicit parameter and must not hold
// long-lived copies of nodes or edges.
type Service struct {
	key   Key
	store *graph.Store

	cacheMu sync.Mutex
	cache   map[int64][]*CacheRecord

	episodeMu sync.RWMutex
	episodes  []*Episode

	messageMu sync.RWMutex
	messages  map[string][]*Message

	embedder Embedder
	cacheTTL time.Duration
	now      func() time.Time
}

// options contains configuration options for creating a Service.
type options struct {
	Embedder Embedder
	CacheTTL time.Duration
	Now      func() time.Time
}

// Option is an option for a Service.
type Option func(*options)

// WithEmbedder sets the embedder used by the response cache and episodic
// memory.
func WithEmbedder(embedder Embedder) Option {
	return func(o *options) {
		o.Embedder = embedder
	}
}

// WithCacheTTL sets the response cache TTL. The default is one hour.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.CacheTTL = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

// DefaultCacheTTL is the default response cache TTL.
const DefaultCacheTTL = time.Hour

// New creates a standalone service. Most callers should use For, which
// memoizes one instance per (workspace, system).
func New(key Key, opts ...Option) *Service {
	o := &options{
		Embedder: NewHashEmbedder(),
		CacheTTL: DefaultCacheTTL,
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		key:      key,
		store:    graph.NewStore(),
		cache:    make(map[int64][]*CacheRecord),
		messages: make(map[string][]*Message),
		embedder: o.Embedder,
		cacheTTL: o.CacheTTL,
		now:      o.Now,
	}
}

// Key returns the workspace/system pair of this service.
func (s *Service) Key() Key {
	return s.key
}

// Graph read API, delegated to the store.

// GetNode returns a copy of the node with the given semantic ID.
func (s *Service) GetNode(semanticID string) (*graph.Node, bool) {
	return s.store.GetNode(semanticID)
}

// GetAllNodes returns copies of all nodes sorted by semantic ID.
func (s *Service) GetAllNodes() []*graph.Node {
	return s.store.GetAllNodes()
}

// GetEdge returns a copy of the edge with the given composite key.
func (s *Service) GetEdge(sourceID string, typ graph.EdgeType, targetID string) (*graph.Edge, bool) {
	return s.store.GetEdge(sourceID, typ, targetID)
}

// GetAllEdges returns copies of all edges sorted by composite key.
func (s *Service) GetAllEdges() []*graph.Edge {
	return s.store.GetAllEdges()
}

// GetEdgesFor returns the edges adjacent to the given node.
func (s *Service) GetEdgesFor(semanticID string, direction graph.Direction) []*graph.Edge {
	return s.store.GetEdgesFor(semanticID, direction)
}

// GetVersion returns the current graph version.
func (s *Service) GetVersion() int64 {
	return s.store.GetVersion()
}

// ToState returns a snapshot copy of the graph.
func (s *Service) ToState() *graph.State {
	return s.store.ToState()
}

// Graph write API, delegated to the store.

// ApplyDiff validates and applies a diff atomically.
func (s *Service) ApplyDiff(diff *graph.Diff, opts ...graph.ApplyOption) (*graph.ApplyResult, error) {
	return s.store.ApplyDiff(diff, opts...)
}

// SetNode inserts or upserts a node.
func (s *Service) SetNode(node *graph.Node, upsert bool) error {
	return s.store.SetNode(node, upsert)
}

// DeleteNode removes a node.
func (s *Service) DeleteNode(semanticID string) error {
	return s.store.DeleteNode(semanticID)
}

// SetEdge inserts or upserts an edge.
func (s *Service) SetEdge(edge *graph.Edge, upsert bool) error {
	return s.store.SetEdge(edge, upsert)
}

// DeleteEdge removes an edge by UUID.
func (s *Service) DeleteEdge(uuid string) error {
	return s.store.DeleteEdge(uuid)
}

// LoadFromState replaces the graph contents with a snapshot.
func (s *Service) LoadFromState(state *graph.State) error {
	return s.store.LoadFromState(state)
}

// SnapshotDirty returns the identifiers changed since the last persistence.
func (s *Service) SnapshotDirty() graph.DirtySet {
	return s.store.SnapshotDirty()
}

// ClearDirty clears exactly the given dirty snapshot.
func (s *Service) ClearDirty(set graph.DirtySet) {
	s.store.ClearDirty(set)
}

// OnGraphChange proxies the graph store change event.
func (s *Service) OnGraphChange(handler graph.ChangeHandler) {
	s.store.OnChange(handler)
}

// factory is the only process-wide state: the memoization table from
// (workspaceId, systemId) to Service.
var factory = struct {
	mu       sync.Mutex
	services map[Key]*Service
}{services: make(map[Key]*Service)}

// For returns the single Service for the given workspace/system pair,
// creating it on first use. Options apply only on creation.
func For(workspaceID, systemID string, opts ...Option) *Service {
	key := Key{WorkspaceID: workspaceID, SystemID: systemID}
	factory.mu.Lock()
	defer factory.mu.Unlock()
	if svc, ok := factory.services[key]; ok {
		return svc
	}
	svc := New(key, opts...)
	factory.services[key] = svc
	return svc
}

// ResetAll clears the memoization table. Called at graceful shutdown.
func ResetAll() {
	factory.mu.Lock()
	defer factory.mu.Unlock()
	factory.services = make(map[Key]*Service)
}
