//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package broadcast provides the WebSocket fabric that fans graph and chat
// updates out to every session of a workspace/system pair.
package broadcast

import "time"

// Message type vocabulary. The set is closed; unknown types are ignored.
const (
	TypeConnected   = "connected"
	TypeSubscribe   = "subscribe"
	TypeSubscribed  = "subscribed"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeGraphUpdate = "graph_update"
	TypeChatUpdate  = "chat_update"
	TypeShutdown    = "shutdown"
)

// Origin classifies who produced an update.
type Origin string

// Origin constants.
const (
	OriginUserEdit Origin = "user-edit"
	OriginLLM      Origin = "llm-operation"
	OriginSystem   Origin = "system"
)

// Source identifies the producer of an update. Updates are suppressed only
// for the originating socket, never for other sessions of the same user.
type Source struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Origin    Origin `json:"origin"`
}

// Subscription scopes a client to one workspace/system pair.
type Subscription struct {
	WorkspaceID string `json:"workspaceId"`
	SystemID    string `json:"systemId"`
	UserID      string `json:"userId"`
}

// Matches reports whether two subscriptions address the same graph. The user
// is deliberately not part of the match.
func (s Subscription) Matches(other Subscription) bool {
	return s.WorkspaceID == other.WorkspaceID && s.SystemID == other.SystemID
}

// Message is the JSON envelope exchanged over the socket.
type Message struct {
	Type string `json:"type"`

	// Connected acknowledgement.
	ClientID string `json:"clientId,omitempty"`

	// Subscribe fields.
	WorkspaceID string `json:"workspaceId,omitempty"`
	SystemID    string `json:"systemId,omitempty"`
	UserID      string `json:"userId,omitempty"`

	// Subscribed acknowledgement.
	Subscription *Subscription `json:"subscription,omitempty"`

	// Update payload: a serialized Format E operations block plus its source.
	Diff   string  `json:"diff,omitempty"`
	Source *Source `json:"source,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// isUpdate reports whether the message carries a graph or chat update.
func (m *Message) isUpdate() bool {
	return m.Type == TypeGraphUpdate || m.Type == TypeChatUpdate
}
