//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package session provides the session orchestrator: it owns the unified
// data service of one workspace/system pair, routes user input between the
// canvas, persistence and the LLM engine, applies operations blocks, and
// drives broadcast and shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/semgraph/broadcast"
	"trpc.group/trpc-go/semgraph/canvas"
	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/engine"
	"trpc.group/trpc-go/semgraph/formate"
	"trpc.group/trpc-go/semgraph/graph"
	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/storage"
)

// AgentID tags episodes recorded by the orchestrator.
const AgentID = "session"

// Processor runs one streamed engine turn. *engine.Engine satisfies it.
type Processor interface {
	ProcessRequestStream(ctx context.Context, req *engine.Request, onChunk engine.OnChunk) error
}

// Bus is the broadcast fan-out the orchestrator publishes to.
// *broadcast.Server satisfies it.
type Bus interface {
	Broadcast(msg *broadcast.Message, originClientID string)
	Shutdown(ctx context.Context) error
}

// Option configures a Session.
type Option func(*Session)

// WithBus attaches the broadcast fan-out.
func WithBus(bus Bus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithChatID pins the chat identifier, for resuming an existing chat.
func WithChatID(chatID string) Option {
	return func(s *Session) {
		s.chatID = chatID
	}
}

// Session orchestrates one user's interaction with one workspace/system
// pair. Methods are safe for the single-caller usage pattern of a terminal
// or socket loop; concurrent HandleInput calls are not supported.
type Session struct {
	workspaceID string
	systemID    string
	userID      string
	chatID      string
	sessionID   string

	svc    *dataservice.Service
	store  storage.Store
	engine Processor
	canvas *canvas.Controller
	bus    Bus

	started bool
	closed  bool
}

// New creates a session over the memoized data service of the pair.
func New(workspaceID, systemID, userID string, store storage.Store, proc Processor, opts ...Option) *Session {
	svc := dataservice.For(workspaceID, systemID)
	s := &Session{
		workspaceID: workspaceID,
		systemID:    systemID,
		userID:      userID,
		chatID:      uuid.NewString(),
		sessionID:   uuid.NewString(),
		svc:         svc,
		store:       store,
		engine:      proc,
		canvas:      canvas.New(svc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatID returns the chat identifier of this session.
func (s *Session) ChatID() string { return s.chatID }

// Service returns the underlying data service.
func (s *Session) Service() *dataservice.Service { return s.svc }

// Canvas returns the view controller.
func (s *Session) Canvas() *canvas.Controller { return s.canvas }

// Start connects the store and restores the workspace. Restoration only
// fills an empty service; a pair already live in this process keeps its
// in-memory state.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	if s.store != nil {
		if err := s.store.Connect(ctx); err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
		if len(s.svc.GetAllNodes()) == 0 {
			if err := s.restore(ctx); err != nil {
				return err
			}
		}
	}
	s.started = true
	return nil
}

func (s *Session) restore(ctx context.Context) error {
	state, err := s.store.LoadWorkspace(ctx, s.workspaceID, s.systemID)
	if err != nil {
		return fmt.Errorf("load workspace %s/%s: %w", s.workspaceID, s.systemID, err)
	}
	if err := s.svc.LoadFromState(&graph.State{Nodes: state.Nodes, Edges: state.Edges}); err != nil {
		return fmt.Errorf("restore graph: %w", err)
	}
	// Stores return messages in no particular order.
	messages := state.Messages
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].Timestamp.Before(messages[j].Timestamp)
		}
		return messages[i].MessageID < messages[j].MessageID
	})
	s.svc.RestoreMessages(messages)
	log.Infof("session %s restored %d nodes, %d messages for %s/%s",
		s.sessionID, len(state.Nodes), len(messages), s.workspaceID, s.systemID)
	return nil
}

// HandleInput routes one line of user input. Slash-commands and "exit" are
// handled locally; anything else becomes an engine turn whose chunks stream
// through onChunk. done reports that the session has shut down.
func (s *Session) HandleInput(ctx context.Context, input string, onChunk engine.OnChunk) (output string, done bool, err error) {
	if s.closed {
		return "", true, errors.New("session is closed")
	}
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return "", false, nil
	case input == "exit":
		if err := s.Shutdown(ctx); err != nil {
			return "", true, err
		}
		return "session closed", true, nil
	case strings.HasPrefix(input, "/"):
		out, err := s.handleCommand(ctx, input)
		return out, false, err
	default:
		resp, err := s.Chat(ctx, input, onChunk)
		if err != nil {
			return "", false, err
		}
		return resp.TextResponse, false, nil
	}
}

func (s *Session) handleCommand(ctx context.Context, input string) (string, error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/save", "/commit":
		return s.Save(ctx)
	case "/stats":
		return s.Stats(), nil
	case "/help":
		return helpText, nil
	case "/view", "/filter", "/select", "/focus", "/clear-filter", "/clear-selection":
		out, err := s.canvas.HandleCommand(input)
		if err != nil {
			return "", err
		}
		return out + "\n" + s.canvas.Render(), nil
	default:
		return "", fmt.Errorf("unknown command: %s (try /help)", fields[0])
	}
}

// Chat runs one engine turn, records both chat messages, and applies any
// operations block the reply carried.
func (s *Session) Chat(ctx context.Context, message string, onChunk engine.OnChunk) (*engine.Response, error) {
	var final *engine.Response
	wrapped := func(chunk *engine.Chunk) {
		if chunk.Type == engine.ChunkComplete {
			final = chunk.Response
		}
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	req := &engine.Request{
		Message:     message,
		ChatID:      s.chatID,
		WorkspaceID: s.workspaceID,
		SystemID:    s.systemID,
		UserID:      s.userID,
	}
	if err := s.engine.ProcessRequestStream(ctx, req, wrapped); err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("engine finished without a final response")
	}

	s.svc.AppendMessage(s.chatID, dataservice.RoleUser, message, "")
	var operations string
	if final.Operations != nil {
		operations = *final.Operations
	}
	s.svc.AppendMessage(s.chatID, dataservice.RoleAssistant, final.TextResponse, operations)
	s.publish(broadcast.TypeChatUpdate, "", broadcast.OriginLLM)

	if final.Operations != nil {
		if _, err := s.ApplyOperations(ctx, *final.Operations, broadcast.OriginLLM); err != nil {
			return final, fmt.Errorf("apply operations: %w", err)
		}
	}
	return final, nil
}

// ApplyOperations parses and applies one Format E operations block. On
// success it records an episode, broadcasts the diff with its origin, and
// appends an audit entry carrying the block text bit-exact. LLM-originated
// blocks apply with upsert; direct user edits apply strictly.
func (s *Session) ApplyOperations(ctx context.Context, operations string, origin broadcast.Origin) (*graph.ApplyResult, error) {
	diff, err := formate.ParseDiff(operations)
	if err != nil {
		return nil, err
	}
	var applyOpts []graph.ApplyOption
	if origin == broadcast.OriginLLM {
		applyOpts = append(applyOpts, graph.WithUpsert())
	}
	result, err := s.svc.ApplyDiff(diff, applyOpts...)
	if err != nil {
		s.svc.StoreEpisode(AgentID, "apply operations", false, map[string]any{
			"origin": string(origin),
		}, err.Error())
		return result, err
	}

	s.svc.StoreEpisode(AgentID, "apply operations", true, map[string]any{
		"origin":  string(origin),
		"applied": result.Applied,
		"version": result.Version,
	}, "")
	s.publish(broadcast.TypeGraphUpdate, operations, origin)
	if s.store != nil {
		if err := s.store.CreateAuditLog(ctx, &storage.AuditEntry{
			WorkspaceID: s.workspaceID,
			SystemID:    s.systemID,
			ChatID:      s.chatID,
			UserID:      s.userID,
			Action:      "apply_diff",
			Diff:        operations,
		}); err != nil {
			log.Warnf("session %s: audit log append failed: %v", s.sessionID, err)
		}
	}
	return result, nil
}

// ApplyUserEdit applies a direct edit made by this session's user.
func (s *Session) ApplyUserEdit(ctx context.Context, operations string) (*graph.ApplyResult, error) {
	return s.ApplyOperations(ctx, operations, broadcast.OriginUserEdit)
}

func (s *Session) publish(msgType, diff string, origin broadcast.Origin) {
	if s.bus == nil {
		return
	}
	s.bus.Broadcast(&broadcast.Message{
		Type:        msgType,
		WorkspaceID: s.workspaceID,
		SystemID:    s.systemID,
		Diff:        diff,
		Source: &broadcast.Source{
			UserID:    s.userID,
			SessionID: s.sessionID,
			Origin:    origin,
		},
		Timestamp: time.Now().UTC(),
	}, "")
}

// Save persists every dirty item plus the chat, appends an audit entry and
// clears exactly the snapshot that was written. Dirty tracking is preserved
// when any write fails.
func (s *Session) Save(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", errors.New("no store configured")
	}
	snapshot := s.svc.SnapshotDirty()

	var nodes []*graph.Node
	for _, id := range snapshot.Nodes {
		// Removed nodes have no current copy to upsert.
		if node, ok := s.svc.GetNode(id); ok {
			nodes = append(nodes, node)
		}
	}
	var edges []*graph.Edge
	for _, key := range snapshot.Edges {
		if edge, ok := s.svc.GetEdge(key.SourceID, key.Type, key.TargetID); ok {
			edges = append(edges, edge)
		}
	}
	messages := s.svc.Messages(s.chatID)

	if err := s.store.SaveNodes(ctx, s.workspaceID, s.systemID, nodes); err != nil {
		return "", fmt.Errorf("save nodes: %w", err)
	}
	if err := s.store.SaveEdges(ctx, s.workspaceID, s.systemID, edges); err != nil {
		return "", fmt.Errorf("save edges: %w", err)
	}
	if err := s.store.SaveMessages(ctx, s.workspaceID, s.systemID, messages); err != nil {
		return "", fmt.Errorf("save messages: %w", err)
	}
	if err := s.store.CreateAuditLog(ctx, &storage.AuditEntry{
		WorkspaceID: s.workspaceID,
		SystemID:    s.systemID,
		ChatID:      s.chatID,
		UserID:      s.userID,
		Action:      "persist",
	}); err != nil {
		return "", fmt.Errorf("audit persist: %w", err)
	}
	s.svc.ClearDirty(snapshot)

	return fmt.Sprintf("saved %d node(s), %d edge(s), %d message(s) at version %d",
		len(nodes), len(edges), len(messages), snapshot.Version), nil
}

// Stats summarizes the graph and the session's unsaved work.
func (s *Session) Stats() string {
	nodes := s.svc.GetAllNodes()
	edges := s.svc.GetAllEdges()

	nodeCounts := make(map[graph.NodeType]int)
	for _, n := range nodes {
		nodeCounts[n.Type]++
	}
	edgeCounts := make(map[graph.EdgeType]int)
	for _, e := range edges {
		edgeCounts[e.Type]++
	}
	dirty := s.svc.SnapshotDirty()

	var b strings.Builder
	fmt.Fprintf(&b, "workspace %s / system %s, graph version %d\n",
		s.workspaceID, s.systemID, s.svc.GetVersion())
	fmt.Fprintf(&b, "nodes: %d\n", len(nodes))
	for _, typ := range sortedKeys(nodeCounts) {
		fmt.Fprintf(&b, "  %s: %d\n", typ, nodeCounts[typ])
	}
	fmt.Fprintf(&b, "edges: %d\n", len(edges))
	for _, typ := range sortedKeys(edgeCounts) {
		fmt.Fprintf(&b, "  %s: %d\n", typ, edgeCounts[typ])
	}
	fmt.Fprintf(&b, "unsaved: %d node(s), %d edge(s)\n", len(dirty.Nodes), len(dirty.Edges))
	fmt.Fprintf(&b, "chat %s: %d message(s)", s.chatID, len(s.svc.Messages(s.chatID)))
	return b.String()
}

func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Shutdown announces shutdown on the bus, flushes pending persistence,
// closes the store and resets the data-service factory table. The session
// cannot be used afterwards.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.bus != nil {
		if err := s.bus.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("broadcast shutdown: %w", err))
		}
	}
	if s.store != nil {
		if _, err := s.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final save: %w", err))
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	dataservice.ResetAll()
	return errors.Join(errs...)
}

const helpText = `commands:
  /save            persist dirty nodes, edges and the chat
  /commit          alias of /save
  /stats           graph and session counters
  /view <name>     hierarchy|allocation|traceability|dependency|fchain|all
  /filter k=v ...  type=..., phase=N, deleted=true|false, search=term
  /select <id>...  mark nodes
  /focus <id>      focus one node
  /clear-filter    drop all filters
  /clear-selection drop the selection
  /help            this text
  exit             save and close the session
anything else is sent to the model`
