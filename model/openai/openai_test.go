//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/tool"
)

func TestConvertMessages_SectionsFlattenIntoOneSystemMessage(t *testing.T) {
	sections := []model.Section{
		{Name: "ontology", Text: "node types", Ephemeral: true},
		{Name: "graph_state", Text: "current graph"},
	}
	messages := []model.Message{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi", ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "graph_query", Arguments: `{"queryType":"nodes"}`},
		}},
		{Role: model.RoleTool, ToolID: "call-1", Content: `{"nodes":[]}`},
	}

	result := convertMessages(sections, messages)
	require.Len(t, result, 4)

	require.NotNil(t, result[0].OfSystem, "sections lead as a single system message")
	require.NotNil(t, result[1].OfUser)
	require.NotNil(t, result[2].OfAssistant)
	require.Len(t, result[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call-1", result[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "graph_query", result[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, result[3].OfTool)
	assert.Equal(t, "call-1", result[3].OfTool.ToolCallID)
}

func TestConvertMessages_NoSectionsNoSystemMessage(t *testing.T) {
	result := convertMessages(nil, []model.Message{{Role: model.RoleUser, Content: "hi"}})
	require.Len(t, result, 1)
	assert.NotNil(t, result[0].OfUser)
}

func TestConvertTools(t *testing.T) {
	result := convertTools([]*tool.Declaration{{
		Name:        "graph_query",
		Description: "read-only graph queries",
		InputSchema: &tool.Schema{
			Type:     "object",
			Required: []string{"queryType"},
			Properties: map[string]*tool.Schema{
				"queryType": {Type: "string"},
			},
		},
	}})
	require.Len(t, result, 1)
	assert.Equal(t, "graph_query", result[0].Function.Name)
	assert.Equal(t, "object", result[0].Function.Parameters["type"])
	assert.Equal(t, []string{"queryType"}, result[0].Function.Parameters["required"])
}

func TestConvertFinishReason(t *testing.T) {
	assert.Equal(t, model.StopToolUse, convertFinishReason("tool_calls"))
	assert.Equal(t, model.StopToolUse, convertFinishReason("function_call"))
	assert.Equal(t, model.StopMaxTokens, convertFinishReason("length"))
	assert.Equal(t, model.StopEndTurn, convertFinishReason("stop"))
	assert.Equal(t, model.StopEndTurn, convertFinishReason(""))
}

func TestInfo(t *testing.T) {
	m := New("gpt-4o", WithAPIKey("test"))
	info := m.Info()
	assert.Equal(t, "gpt-4o", info.Name)
	assert.Equal(t, "openai", info.Provider)
}
