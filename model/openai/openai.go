//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package openai implements the model.Model contract on any
// OpenAI-compatible chat completions endpoint. The API has no prompt-caching
// primitive, so section cache hints are ignored and the sections are
// concatenated into one system message; cache token counts are never
// reported.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/tool"
)

const defaultChannelBufferSize = 256

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

// WithBaseURL sets the endpoint, e.g. for a self-hosted compatible server.
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

// Model streams chat completions from an OpenAI-compatible endpoint.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

// New creates an OpenAI-compatible model.
func New(name string, opts ...Option) *Model {
	o := &options{ChannelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.ChannelBufferSize,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name, Provider: "openai"}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Sections, request.Messages),
		Tools:    convertTools(request.Tools),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if request.MaxTokens > 0 {
		chatRequest.MaxCompletionTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		m.handleStream(ctx, chatRequest, responseChan)
	}()
	return responseChan, nil
}

// convertMessages flattens the sections into a single leading system message
// and maps the chat turns.
func convertMessages(sections []model.Section, messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	if len(sections) > 0 {
		texts := make([]string, 0, len(sections))
		for _, s := range sections {
			texts = append(texts, s.Text)
		}
		result = append(result, openai.SystemMessage(strings.Join(texts, "\n\n")))
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func convertTools(tools []*tool.Declaration) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, decl := range tools {
		var parameters shared.FunctionParameters
		if decl.InputSchema != nil {
			parameters = shared.FunctionParameters{
				"type":       decl.InputSchema.Type,
				"properties": decl.InputSchema.Properties,
			}
			if len(decl.InputSchema.Required) > 0 {
				parameters["required"] = decl.InputSchema.Required
			}
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

func (m *Model) handleStream(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	var finishReason string
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		// Tool call deltas are not emitted; the accumulated calls surface on
		// the final chunk.
		if choice.Delta.Content != "" && len(choice.Delta.ToolCalls) == 0 {
			m.send(ctx, responseChan, &model.Response{Delta: choice.Delta.Content})
		}
	}
	if err := stream.Err(); err != nil {
		log.Errorf("openai: stream failed for model %s: %v", m.name, err)
		m.send(ctx, responseChan, &model.Response{
			Error: &model.ResponseError{Message: err.Error(), Type: "api_error"},
		})
		return
	}
	m.send(ctx, responseChan, finalResponse(&acc, finishReason))
}

// finalResponse converts the accumulated completion into the terminal chunk.
func finalResponse(acc *openai.ChatCompletionAccumulator, finishReason string) *model.Response {
	response := &model.Response{
		Done:       true,
		StopReason: convertFinishReason(finishReason),
		Usage: &model.Usage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		},
	}
	if len(acc.Choices) > 0 {
		for _, call := range acc.Choices[0].Message.ToolCalls {
			// The accumulator can report an empty placeholder per index.
			if call.ID == "" && call.Function.Name == "" {
				continue
			}
			response.ToolCalls = append(response.ToolCalls, model.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	if len(response.ToolCalls) > 0 {
		response.StopReason = model.StopToolUse
	}
	return response
}

func convertFinishReason(reason string) model.StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return model.StopToolUse
	case "length":
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
