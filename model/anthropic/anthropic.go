//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package anthropic implements the model.Model contract on the Anthropic
// Messages API. Ephemeral prompt sections become system blocks with
// cache_control, so stable prefixes are served from the provider cache.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/tool"
)

const (
	defaultChannelBufferSize = 256
	defaultMaxTokens         = 8192
)

// Option configures the model.
type Option func(*options)

type options struct {
	APIKey            string
	BaseURL           string
	ChannelBufferSize int
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithBaseURL overrides the API endpoint, e.g. for a gateway.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithChannelBufferSize sets the response channel buffer size.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		o.ChannelBufferSize = size
	}
}

// Model streams completions from the Anthropic Messages API.
type Model struct {
	client            anthropic.Client
	name              string
	channelBufferSize int
}

// New creates an Anthropic-backed model.
func New(name string, opts ...Option) *Model {
	o := &options{ChannelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []option.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(o.BaseURL))
	}
	return &Model{
		client:            anthropic.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.ChannelBufferSize,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name, Provider: "anthropic"}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: int64(maxTokens),
		System:    convertSections(request.Sections),
		Messages:  convertMessages(request.Messages),
		Tools:     convertTools(request.Tools),
	}
	if request.Temperature != nil {
		params.Temperature = anthropic.Float(*request.Temperature)
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		m.handleStream(ctx, params, responseChan)
	}()
	return responseChan, nil
}

// convertSections maps prompt sections to system blocks. Ephemeral sections
// get cache_control so the provider caches the prefix up to that block.
func convertSections(sections []model.Section) []anthropic.TextBlockParam {
	blocks := make([]anthropic.TextBlockParam, 0, len(sections))
	for _, s := range sections {
		block := anthropic.TextBlockParam{Text: s.Text}
		if s.Ephemeral {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, json.RawMessage(call.Arguments), call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case model.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolID, msg.Content, msg.ToolError)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

func convertTools(tools []*tool.Declaration) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, decl := range tools {
		param := anthropic.ToolParam{
			Name:        decl.Name,
			Description: anthropic.String(decl.Description),
		}
		if decl.InputSchema != nil {
			properties := make(map[string]any, len(decl.InputSchema.Properties))
			for name, schema := range decl.InputSchema.Properties {
				properties[name] = schema
			}
			param.InputSchema = anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   decl.InputSchema.Required,
			}
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &param})
	}
	return result
}

func (m *Model) handleStream(
	ctx context.Context,
	params anthropic.MessageNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			m.send(ctx, responseChan, &model.Response{
				Error: &model.ResponseError{Message: err.Error(), Type: "accumulate_error"},
			})
			return
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if deltaVariant, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				m.send(ctx, responseChan, &model.Response{Delta: deltaVariant.Text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		log.Errorf("anthropic: stream failed for model %s: %v", m.name, err)
		m.send(ctx, responseChan, &model.Response{
			Error: &model.ResponseError{Message: err.Error(), Type: "api_error"},
		})
		return
	}
	m.send(ctx, responseChan, finalResponse(&message))
}

// finalResponse converts the accumulated message into the terminal chunk.
func finalResponse(message *anthropic.Message) *model.Response {
	response := &model.Response{
		Done:       true,
		StopReason: convertStopReason(message.StopReason),
		Usage: &model.Usage{
			InputTokens:      int(message.Usage.InputTokens),
			OutputTokens:     int(message.Usage.OutputTokens),
			CacheReadTokens:  int(message.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(message.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range message.Content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			response.ToolCalls = append(response.ToolCalls, model.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: toolUse.JSON.Input.Raw(),
			})
		}
	}
	return response
}

func convertStopReason(reason anthropic.StopReason) model.StopReason {
	switch reason {
	case anthropic.StopReasonToolUse:
		return model.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return model.StopMaxTokens
	default:
		return model.StopEndTurn
	}
}

// send delivers a chunk unless the context is already done.
func (m *Model) send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) {
	select {
	case ch <- rsp:
	case <-ctx.Done():
	}
}
