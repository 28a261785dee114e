//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package engine drives one streaming LLM turn: cache lookup, prompt
// assembly, the provider tool-use loop, and the response side effects.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/prompt"
	"trpc.group/trpc-go/semgraph/response"
	"trpc.group/trpc-go/semgraph/slicer"
	"trpc.group/trpc-go/semgraph/tool"
)

// AgentID identifies the engine in episodic memory.
const AgentID = "llm-engine"

const (
	// MaxToolIterations caps the tool-use loop per turn.
	MaxToolIterations = 5

	defaultPromptBudget = 4000
)

// ChunkType discriminates the streamed chunk protocol.
type ChunkType string

// Chunk type constants.
const (
	// ChunkText is incremental plain prose.
	ChunkText ChunkType = "text"
	// ChunkContent is one complete operations block.
	ChunkContent ChunkType = "content"
	// ChunkComplete is the terminal chunk carrying the full response.
	ChunkComplete ChunkType = "complete"
)

// Chunk is one unit of the streamed reply.
type Chunk struct {
	Type     ChunkType `json:"type"`
	Text     string    `json:"text,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Request is one user turn addressed to the engine.
type Request struct {
	Message     string `json:"message"`
	ChatID      string `json:"chatId"`
	WorkspaceID string `json:"workspaceId"`
	SystemID    string `json:"systemId"`
	UserID      string `json:"userId"`
	// CanvasState carries the canvas's serialized view context; it is
	// forwarded to the graph-state prompt section so the model sees what
	// the user is looking at.
	CanvasState string `json:"canvasState,omitempty"`
	// PhaseHint narrows validate-phase slices; zero means every phase.
	PhaseHint int `json:"phaseHint,omitempty"`
	// ContextHints are free-form routing hints. "phase" is honored as a
	// fallback for PhaseHint; unknown keys are ignored.
	ContextHints map[string]string `json:"contextHints,omitempty"`
}

// phase resolves the phase hint, preferring the explicit field.
func (r *Request) phase() int {
	if r.PhaseHint != 0 {
		return r.PhaseHint
	}
	if v, err := strconv.Atoi(r.ContextHints["phase"]); err == nil {
		return v
	}
	return 0
}

// Response is the final result of one turn.
type Response struct {
	TextResponse string      `json:"textResponse"`
	Operations   *string     `json:"operations"`
	Usage        model.Usage `json:"usage"`
	CacheHit     bool        `json:"cacheHit"`
	Model        string      `json:"model"`
	ResponseID   string      `json:"responseId"`
}

// OnChunk receives streamed chunks. Calls are sequential.
type OnChunk func(*Chunk)

// Option configures the engine.
type Option func(*Engine)

// WithPromptBudget sets the token budget slices are pruned to.
func WithPromptBudget(budget int) Option {
	return func(e *Engine) {
		e.promptBudget = budget
	}
}

// WithMaxTokens sets the provider completion budget per iteration.
func WithMaxTokens(maxTokens int) Option {
	return func(e *Engine) {
		e.maxTokens = maxTokens
	}
}

// WithAssemblerOptions forwards options to the prompt assembler.
func WithAssemblerOptions(opts ...prompt.Option) Option {
	return func(e *Engine) {
		e.assembler = prompt.New(e.svc, opts...)
	}
}

// Engine runs streaming LLM turns over one (workspace, system) data service.
type Engine struct {
	svc       *dataservice.Service
	llm       model.Model
	registry  *tool.Registry
	slicer    *slicer.Slicer
	assembler *prompt.Assembler
	tracer    trace.Tracer

	promptBudget int
	maxTokens    int
}

// New creates an engine. A nil registry disables the tool loop.
func New(svc *dataservice.Service, llm model.Model, registry *tool.Registry, opts ...Option) *Engine {
	e := &Engine{
		svc:          svc,
		llm:          llm,
		registry:     registry,
		slicer:       slicer.New(svc),
		assembler:    prompt.New(svc),
		tracer:       otel.Tracer("trpc.group/trpc-go/semgraph/engine"),
		promptBudget: defaultPromptBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessRequestStream runs one turn, delivering chunks through onChunk. On
// a provider error the error is returned and no complete chunk is emitted.
// No chunks are delivered after ctx is done.
func (e *Engine) ProcessRequestStream(ctx context.Context, req *Request, onChunk OnChunk) error {
	ctx, span := e.tracer.Start(ctx, "engine.process_request",
		trace.WithAttributes(
			attribute.String("chat.id", req.ChatID),
			attribute.String("workspace.id", req.WorkspaceID),
			attribute.String("system.id", req.SystemID),
		))
	defer span.End()

	emit := func(chunk *Chunk) {
		if ctx.Err() == nil {
			onChunk(chunk)
		}
	}

	// Cache lookup. A hit replays the stored turn with zero token usage.
	version := e.svc.GetVersion()
	if record := e.svc.CheckCache(req.Message, version); record != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		emit(&Chunk{Type: ChunkText, Text: record.Response})
		final := &Response{
			TextResponse: record.Response,
			CacheHit:     true,
			Model:        e.llm.Info().Name,
			ResponseID:   uuid.NewString(),
		}
		if record.Operations != "" {
			operations := record.Operations
			final.Operations = &operations
		}
		emit(&Chunk{Type: ChunkComplete, Response: final})
		return nil
	}

	slice := e.slicer.Extract(req.Message, req.phase())
	e.slicer.PruneToFit(slice, e.promptBudget)
	sections := toModelSections(e.assembler.Build(req.ChatID, slice, req.CanvasState))

	turn, err := e.runToolLoop(ctx, req, sections, emit)
	if err != nil {
		span.RecordError(err)
		return err
	}

	textResponse, operations := response.Parse(turn.buffer)
	final := &Response{
		TextResponse: textResponse,
		Operations:   operations,
		Usage:        turn.usage,
		Model:        e.llm.Info().Name,
		ResponseID:   uuid.NewString(),
	}

	// Side effects happen even when the caller cancelled after the stream
	// finished naturally.
	var operationsText string
	if operations != nil {
		operationsText = *operations
	}
	e.svc.CacheResponse(req.Message, e.svc.GetVersion(), textResponse, operationsText)
	e.svc.StoreEpisode(AgentID, req.Message, operations != nil, map[string]any{
		"responseId":     final.ResponseID,
		"toolIterations": turn.iterations,
		"hasOperations":  operations != nil,
	}, "")

	emit(&Chunk{Type: ChunkComplete, Response: final})
	return nil
}

// turnState accumulates across tool-use iterations.
type turnState struct {
	buffer      string
	textEmitted int
	usage       model.Usage
	iterations  int
}

// toModelSections converts assembled prompt sections into the provider
// request shape.
func toModelSections(sections []prompt.Section) []model.Section {
	out := make([]model.Section, len(sections))
	for i, s := range sections {
		out[i] = model.Section{Name: s.Name, Text: s.Text, Ephemeral: s.Ephemeral}
	}
	return out
}

// runToolLoop streams provider completions, executing tool calls between
// iterations, until the provider stops for a reason other than tool_use or
// the iteration cap is reached.
func (e *Engine) runToolLoop(ctx context.Context, req *Request, sections []model.Section, emit OnChunk) (*turnState, error) {
	var declarations []*tool.Declaration
	if e.registry != nil {
		declarations = e.registry.Declarations()
	}
	messages := []model.Message{{Role: model.RoleUser, Content: req.Message}}
	state := &turnState{}

	for iteration := 0; ; iteration++ {
		state.iterations = iteration
		modelReq := &model.Request{
			Sections:  sections,
			Messages:  messages,
			Tools:     declarations,
			MaxTokens: e.maxTokens,
		}
		final, turnText, err := e.streamOnce(ctx, modelReq, state, emit)
		if err != nil {
			return nil, err
		}
		state.addUsage(final.Usage)

		if final.StopReason != model.StopToolUse || len(final.ToolCalls) == 0 || iteration >= MaxToolIterations-1 {
			e.flushRemainingText(state, emit)
			return state, nil
		}
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   turnText,
			ToolCalls: final.ToolCalls,
		})
		messages = append(messages, e.executeToolCalls(ctx, final.ToolCalls)...)
	}
}

// streamOnce consumes one provider stream, emitting text and content chunks
// per the block-detection rules, and returns the terminal response plus the
// raw text of this turn.
func (e *Engine) streamOnce(ctx context.Context, modelReq *model.Request, state *turnState, emit OnChunk) (*model.Response, string, error) {
	ch, err := e.llm.GenerateContent(ctx, modelReq)
	if err != nil {
		return nil, "", fmt.Errorf("open provider stream: %w", err)
	}

	emitted := len(response.AllCompleteBlocks(state.buffer))
	// Text is emitted as the unseen suffix of the stream's visible portion,
	// so block interiors and fragments that could still grow into an open
	// tag never surface as text chunks.
	flushText := func(finished bool) {
		visible := response.VisibleText(state.buffer, finished)
		if len(visible) > state.textEmitted {
			emit(&Chunk{Type: ChunkText, Text: visible[state.textEmitted:]})
			state.textEmitted = len(visible)
		}
	}

	var turnText string
	var final *model.Response
	for rsp := range ch {
		if rsp.Error != nil {
			return nil, "", fmt.Errorf("provider stream: %w", rsp.Error)
		}
		if rsp.Delta != "" {
			state.buffer += rsp.Delta
			turnText += rsp.Delta
			blocks := response.AllCompleteBlocks(state.buffer)
			for ; emitted < len(blocks); emitted++ {
				emit(&Chunk{Type: ChunkContent, Text: blocks[emitted]})
			}
			flushText(false)
		}
		if rsp.Done {
			final = rsp
		}
	}
	if final == nil {
		// A stream that ends without a terminal chunk was aborted; report
		// the cancellation when that is the cause. A stream that finished
		// naturally proceeds to the side-effect phase even if the caller
		// has cancelled since, with emission suppressed.
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		return nil, "", errors.New("provider stream ended without a final chunk")
	}
	return final, turnText, nil
}

// flushRemainingText emits whatever held-back text remains once the turn is
// over, such as a trailing fragment that looked like an open tag.
func (e *Engine) flushRemainingText(state *turnState, emit OnChunk) {
	visible := response.VisibleText(state.buffer, true)
	if len(visible) > state.textEmitted {
		emit(&Chunk{Type: ChunkText, Text: visible[state.textEmitted:]})
		state.textEmitted = len(visible)
	}
}

// executeToolCalls runs each call through the registry and returns the tool
// result turns. Execution errors become error-flagged results instead of
// aborting the turn.
func (e *Engine) executeToolCalls(ctx context.Context, calls []model.ToolCall) []model.Message {
	results := make([]model.Message, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.executeToolCall(ctx, call))
	}
	return results
}

func (e *Engine) executeToolCall(ctx context.Context, call model.ToolCall) model.Message {
	fail := func(err error) model.Message {
		log.Warnf("engine: tool %s failed: %v", call.Name, err)
		return model.Message{Role: model.RoleTool, ToolID: call.ID, Content: err.Error(), ToolError: true}
	}
	if e.registry == nil {
		return fail(fmt.Errorf("no tools registered"))
	}
	t, ok := e.registry.Get(call.Name)
	if !ok {
		return fail(fmt.Errorf("unknown tool: %s", call.Name))
	}
	// Providers occasionally emit truncated or sloppy JSON for tool inputs.
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	repaired, err := jsonrepair.JSONRepair(args)
	if err != nil {
		return fail(fmt.Errorf("unparseable tool arguments: %w", err))
	}
	result, err := t.Call(ctx, []byte(repaired))
	if err != nil {
		return fail(err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fail(fmt.Errorf("encode tool result: %w", err))
	}
	return model.Message{Role: model.RoleTool, ToolID: call.ID, Content: string(encoded)}
}

func (s *turnState) addUsage(usage *model.Usage) {
	if usage == nil {
		return
	}
	s.usage.InputTokens += usage.InputTokens
	s.usage.OutputTokens += usage.OutputTokens
	s.usage.CacheReadTokens += usage.CacheReadTokens
	s.usage.CacheWriteTokens += usage.CacheWriteTokens
}
