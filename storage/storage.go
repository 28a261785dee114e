//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package storage defines the long-term store contract the session
// orchestrator persists to. Node and edge table layout is the store's
// business; the only bit-exact artifact owned by the core is the audit-log
// diff text.
package storage

import (
	"context"
	"time"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
)

// WorkspaceState is the persisted content of one workspace/system pair.
type WorkspaceState struct {
	Nodes    []*graph.Node          `json:"nodes"`
	Edges    []*graph.Edge          `json:"edges"`
	Messages []*dataservice.Message `json:"messages,omitempty"`
}

// AuditEntry records one applied or persisted change.
type AuditEntry struct {
	WorkspaceID string    `json:"workspaceId"`
	SystemID    string    `json:"systemId"`
	ChatID      string    `json:"chatId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	Action      string    `json:"action"`
	// Diff is Format E text; it is stored bit-exact.
	Diff      string    `json:"diff,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the long-term persistence contract.
type Store interface {
	// Connect opens the store.
	Connect(ctx context.Context) error
	// Close releases the store.
	Close() error

	// LoadWorkspace returns the persisted state of a workspace/system pair.
	LoadWorkspace(ctx context.Context, workspaceID, systemID string) (*WorkspaceState, error)
	// SaveNodes upserts nodes.
	SaveNodes(ctx context.Context, workspaceID, systemID string, nodes []*graph.Node) error
	// SaveEdges upserts edges.
	SaveEdges(ctx context.Context, workspaceID, systemID string, edges []*graph.Edge) error
	// SaveMessages upserts chat messages.
	SaveMessages(ctx context.Context, workspaceID, systemID string, messages []*dataservice.Message) error
	// CreateAuditLog appends one audit entry.
	CreateAuditLog(ctx context.Context, entry *AuditEntry) error
}
