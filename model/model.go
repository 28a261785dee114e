//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package model defines the provider-neutral LLM contract: prompt sections
// with cache hints, chat messages, tool declarations, and a streamed
// response channel.
package model

import (
	"context"

	"trpc.group/trpc-go/semgraph/tool"
)

// Role is the author role of a chat message.
type Role string

// Role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model. Arguments is the
// raw JSON input, accumulated from stream deltas by the transport.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one chat turn. Assistant turns may carry tool calls; tool turns
// carry the result of the call identified by ToolID.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	ToolID    string     `json:"toolId,omitempty"`
	// ToolError marks a tool turn whose execution failed; the content then
	// holds the error text.
	ToolError bool `json:"toolError,omitempty"`
}

// Section is a system prompt section. Ephemeral asks the transport to cache
// the prefix when the backend has a prompt-caching primitive; transports
// without one ignore the flag and concatenate the sections verbatim.
type Section struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Ephemeral bool   `json:"ephemeral"`
}

// Request is one generation request.
type Request struct {
	Sections    []Section           `json:"sections,omitempty"`
	Messages    []Message           `json:"messages"`
	Tools       []*tool.Declaration `json:"tools,omitempty"`
	MaxTokens   int                 `json:"maxTokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

// StopReason explains why the model stopped generating.
type StopReason string

// Stop reason constants.
const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage is the token accounting of one request. Cache counts stay zero on
// backends without prompt caching.
type Usage struct {
	InputTokens      int `json:"inputTokens"`
	OutputTokens     int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens int `json:"cacheWriteTokens,omitempty"`
}

// ResponseError carries a provider-side failure through the stream.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Message
}

// Response is one streamed chunk. Intermediate chunks carry a text delta;
// the final chunk has Done set with the stop reason, any accumulated tool
// calls, and usage. A chunk with Error set terminates the stream.
type Response struct {
	Delta      string         `json:"delta,omitempty"`
	Done       bool           `json:"done,omitempty"`
	StopReason StopReason     `json:"stopReason,omitempty"`
	ToolCalls  []ToolCall     `json:"toolCalls,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	Error      *ResponseError `json:"error,omitempty"`
}

// Info holds descriptive information about a model.
type Info struct {
	// Name is the model identifier sent to the backend.
	Name string `json:"name"`
	// Provider is the transport family, e.g. "anthropic" or "openai".
	Provider string `json:"provider"`
}

// Model is the interface every provider transport implements. The returned
// channel is closed when generation finishes; the transport stops writing
// when ctx is done.
type Model interface {
	// GenerateContent sends the request and streams response chunks.
	GenerateContent(ctx context.Context, req *Request) (<-chan *Response, error)

	// Info returns descriptive information about the model.
	Info() Info
}
