//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/tool"
)

// scriptedModel replays one scripted chunk sequence per GenerateContent call
// and records every request it receives.
type scriptedModel struct {
	turns    [][]*model.Response
	requests []*model.Request
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test"}
}

func (m *scriptedModel) GenerateContent(_ context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.requests = append(m.requests, req)
	turn := m.turns[0]
	m.turns = m.turns[1:]
	ch := make(chan *model.Response, len(turn))
	for _, rsp := range turn {
		ch <- rsp
	}
	close(ch)
	return ch, nil
}

func deltas(texts ...string) []*model.Response {
	var out []*model.Response
	for _, t := range texts {
		out = append(out, &model.Response{Delta: t})
	}
	return out
}

func done(reason model.StopReason, calls ...model.ToolCall) *model.Response {
	return &model.Response{
		Done:       true,
		StopReason: reason,
		ToolCalls:  calls,
		Usage:      &model.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// echoTool returns its arguments untouched.
type echoTool struct{}

func (echoTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: "echo", Description: "echoes", InputSchema: &tool.Schema{Type: "object"}}
}

func (echoTool) Call(_ context.Context, jsonArgs []byte) (any, error) {
	var v map[string]any
	if err := json.Unmarshal(jsonArgs, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func collect(t *testing.T, e *Engine, req *Request) ([]*Chunk, error) {
	t.Helper()
	var chunks []*Chunk
	err := e.ProcessRequestStream(context.Background(), req, func(c *Chunk) {
		chunks = append(chunks, c)
	})
	return chunks, err
}

func TestProcessRequestStream_SeparatesTextAndOperations(t *testing.T) {
	svc := dataservice.New(dataservice.Key{WorkspaceID: "w", SystemID: "s"})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas(
			"Adding the function. ",
			"<operations>\n+ Pay.FN.001|Process payment\n",
			"</operations>",
			" All set.",
		), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	chunks, err := collect(t, e, &Request{Message: "add a payment function", ChatID: "chat-1"})
	require.NoError(t, err)

	var texts, contents []string
	var final *Response
	for _, c := range chunks {
		switch c.Type {
		case ChunkText:
			texts = append(texts, c.Text)
		case ChunkContent:
			contents = append(contents, c.Text)
		case ChunkComplete:
			final = c.Response
		}
	}
	assert.Equal(t, []string{"Adding the function. ", " All set."}, texts,
		"block interior never surfaces as text")
	require.Len(t, contents, 1)
	assert.Equal(t, "+ Pay.FN.001|Process payment", contents[0])

	require.NotNil(t, final)
	assert.False(t, final.CacheHit)
	require.NotNil(t, final.Operations)
	assert.Equal(t, "+ Pay.FN.001|Process payment", *final.Operations)
	assert.Equal(t, 10, final.Usage.InputTokens)
	assert.Equal(t, "scripted", final.Model)
	assert.NotEmpty(t, final.ResponseID)
}

func TestProcessRequestStream_CacheHitReplaysStoredTurn(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	svc.CacheResponse("add a payment function", svc.GetVersion(), "cached answer", "+ Pay.FN.001|x")
	e := New(svc, &scriptedModel{}, nil)

	chunks, err := collect(t, e, &Request{Message: "add a payment function"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkText, chunks[0].Type)
	assert.Equal(t, "cached answer", chunks[0].Text)

	final := chunks[1].Response
	require.NotNil(t, final)
	assert.True(t, final.CacheHit)
	assert.Equal(t, model.Usage{}, final.Usage, "cache hits report zero usage")
	require.NotNil(t, final.Operations)
	assert.Equal(t, "+ Pay.FN.001|x", *final.Operations)
}

func TestProcessRequestStream_ToolLoopWithRepairedArguments(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	// Truncated JSON from the provider; jsonrepair closes it.
	call := model.ToolCall{ID: "call-1", Name: "echo", Arguments: `{"value": 1`}
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("Let me check."), done(model.StopToolUse, call)),
		append(deltas(" The graph is fine."), done(model.StopEndTurn)),
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	e := New(svc, llm, registry)

	chunks, err := collect(t, e, &Request{Message: "inspect the graph"})
	require.NoError(t, err)

	require.Len(t, llm.requests, 2)
	second := llm.requests[1].Messages
	require.Len(t, second, 3, "user, assistant tool-use, tool result")
	assert.Equal(t, model.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	toolTurn := second[2]
	assert.Equal(t, model.RoleTool, toolTurn.Role)
	assert.Equal(t, "call-1", toolTurn.ToolID)
	assert.False(t, toolTurn.ToolError)
	assert.JSONEq(t, `{"value":1}`, toolTurn.Content)

	final := chunks[len(chunks)-1]
	require.Equal(t, ChunkComplete, final.Type)
	assert.Equal(t, 20, final.Response.Usage.InputTokens, "usage sums across iterations")
}

func TestProcessRequestStream_UnknownToolBecomesErrorResult(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	call := model.ToolCall{ID: "call-1", Name: "missing", Arguments: `{}`}
	llm := &scriptedModel{turns: [][]*model.Response{
		{done(model.StopToolUse, call)},
		append(deltas("Recovered."), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, tool.NewRegistry())

	_, err := collect(t, e, &Request{Message: "inspect"})
	require.NoError(t, err, "tool errors do not abort the turn")

	toolTurn := llm.requests[1].Messages[2]
	assert.True(t, toolTurn.ToolError)
	assert.Contains(t, toolTurn.Content, "unknown tool")
}

func TestProcessRequestStream_ProviderErrorEmitsNoComplete(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("partial"), &model.Response{Error: &model.ResponseError{Message: "boom"}}),
	}}
	e := New(svc, llm, nil)

	chunks, err := collect(t, e, &Request{Message: "hello"})
	require.Error(t, err)
	for _, c := range chunks {
		assert.NotEqual(t, ChunkComplete, c.Type, "no complete chunk after a stream error")
	}
	assert.Nil(t, svc.CheckCache("hello", svc.GetVersion()), "failed turns are not cached")
}

func TestProcessRequestStream_SideEffectsOnSuccess(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("<operations>\n+ A.FN.001|a\n</operations>"), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	_, err := collect(t, e, &Request{Message: "add a"})
	require.NoError(t, err)

	assert.NotNil(t, svc.CheckCache("add a", svc.GetVersion()), "response cached at current version")
	episodes := svc.LoadContext(AgentID, "", 10)
	require.Len(t, episodes, 1)
	assert.True(t, episodes[0].Success, "operations present means success")
}

func TestProcessRequestStream_CancelledContextEmitsNothing(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("hello"), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var chunks []*Chunk
	err := e.ProcessRequestStream(ctx, &Request{Message: "hi"}, func(c *Chunk) {
		chunks = append(chunks, c)
	})
	// The scripted stream still finished with a terminal chunk, so the turn
	// completes; only chunk delivery is suppressed.
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessRequestStream_CancelledAfterStreamStillWritesSideEffects(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("first ", "second"), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var chunks []*Chunk
	err := e.ProcessRequestStream(ctx, &Request{Message: "hi"}, func(c *Chunk) {
		chunks = append(chunks, c)
		cancel()
	})
	require.NoError(t, err)

	require.Len(t, chunks, 1, "no chunks after the caller cancelled")
	assert.Equal(t, ChunkText, chunks[0].Type)
	assert.NotNil(t, svc.CheckCache("hi", svc.GetVersion()),
		"a naturally finished stream is cached despite the cancellation")
	assert.Len(t, svc.LoadContext(AgentID, "", 10), 1)
}

func TestProcessRequestStream_AbortedStreamSkipsSideEffects(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	// The channel closes without a terminal chunk, as a provider does when
	// its context is torn down mid-stream.
	llm := &scriptedModel{turns: [][]*model.Response{deltas("par")}}
	e := New(svc, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.ProcessRequestStream(ctx, &Request{Message: "hi"}, func(*Chunk) {})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, svc.CheckCache("hi", svc.GetVersion()))
	assert.Empty(t, svc.LoadContext(AgentID, "", 10))
}

func TestProcessRequestStream_TagSplitAcrossDeltas(t *testing.T) {
	svc := dataservice.New(dataservice.Key{WorkspaceID: "w", SystemID: "s"})
	stream := "Adding a node.\n<operations>\n+ A.FN.001|x\n</operations>\nDone."
	// Six-character deltas cut both tags mid-way.
	var parts []string
	for i := 0; i < len(stream); i += 6 {
		end := i + 6
		if end > len(stream) {
			end = len(stream)
		}
		parts = append(parts, stream[i:end])
	}
	require.Len(t, parts, 10)
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas(parts...), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	chunks, err := collect(t, e, &Request{Message: "add a node"})
	require.NoError(t, err)

	var text strings.Builder
	var contents []string
	var final *Response
	for _, c := range chunks {
		switch c.Type {
		case ChunkText:
			assert.NotContains(t, strings.ToLower(c.Text), "<op",
				"tag fragments never surface as text")
			text.WriteString(c.Text)
		case ChunkContent:
			contents = append(contents, c.Text)
		case ChunkComplete:
			final = c.Response
		}
	}
	require.NotNil(t, final)
	require.Len(t, contents, 1)
	assert.Equal(t, "+ A.FN.001|x", contents[0])
	assert.Equal(t, final.TextResponse, strings.TrimSpace(text.String()),
		"joined text chunks equal the final text")
	assert.Equal(t, "Adding a node.\n\nDone.", final.TextResponse)
	require.NotNil(t, final.Operations)
	assert.Equal(t, "+ A.FN.001|x", *final.Operations)
}

func TestProcessRequestStream_TrailingTagFragmentFlushes(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("tokens like <opera"), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	chunks, err := collect(t, e, &Request{Message: "explain"})
	require.NoError(t, err)

	var texts []string
	for _, c := range chunks {
		if c.Type == ChunkText {
			texts = append(texts, c.Text)
		}
	}
	require.Len(t, texts, 2)
	assert.Equal(t, "tokens like ", texts[0], "the tag-like suffix is withheld mid-stream")
	assert.Equal(t, "<opera", texts[1], "and flushed once the turn ends")
}

func TestProcessRequestStream_SectionsReachProvider(t *testing.T) {
	svc := dataservice.New(dataservice.Key{WorkspaceID: "w", SystemID: "s"})
	llm := &scriptedModel{turns: [][]*model.Response{
		append(deltas("ok"), done(model.StopEndTurn)),
	}}
	e := New(svc, llm, nil)

	_, err := collect(t, e, &Request{
		Message:     "describe the graph",
		CanvasState: "hierarchy view",
	})
	require.NoError(t, err)

	require.Len(t, llm.requests, 1)
	sections := llm.requests[0].Sections
	require.NotEmpty(t, sections)
	names := make([]string, 0, len(sections))
	for _, s := range sections {
		assert.True(t, s.Ephemeral, "cache hints survive into the provider request")
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"ontology", "methodology", "graph_state"}, names)
	assert.Contains(t, sections[2].Text, "hierarchy view",
		"the canvas state reaches the graph-state section")
}

func TestRequest_PhaseHintFallsBackToContextHints(t *testing.T) {
	assert.Equal(t, 2, (&Request{PhaseHint: 2}).phase())
	assert.Equal(t, 3, (&Request{ContextHints: map[string]string{"phase": "3"}}).phase())
	assert.Equal(t, 2, (&Request{PhaseHint: 2, ContextHints: map[string]string{"phase": "9"}}).phase())
	assert.Equal(t, 0, (&Request{ContextHints: map[string]string{"phase": "soon"}}).phase())
	assert.Equal(t, 0, (&Request{}).phase())
}
