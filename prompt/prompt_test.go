//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
	"trpc.group/trpc-go/semgraph/slicer"
)

func newService(t *testing.T) *dataservice.Service {
	t.Helper()
	svc := dataservice.New(dataservice.Key{WorkspaceID: "w", SystemID: "s"})
	node, err := graph.NewNode("Order.SY.001", "Order management system", nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetNode(node, false))
	return svc
}

func TestBuild_SectionOrderAndCacheHints(t *testing.T) {
	svc := newService(t)
	sections := New(svc).Build("", nil, "")

	require.Len(t, sections, 3, "no history section without a chat")
	assert.Equal(t, SectionOntology, sections[0].Name)
	assert.Equal(t, SectionMethodology, sections[1].Name)
	assert.Equal(t, SectionGraphState, sections[2].Name)
	for _, s := range sections {
		assert.True(t, s.Ephemeral, "section %s carries the cache hint", s.Name)
		assert.NotEmpty(t, s.Text)
	}
	assert.Contains(t, sections[0].Text, "Format E")
	assert.Contains(t, sections[2].Text, "+ Order.SY.001|Order management system")
}

func TestBuild_SliceReplacesFullGraphState(t *testing.T) {
	svc := newService(t)
	slice := slicer.New(svc).Extract("what is in this model", 0)

	sections := New(svc).Build("", slice, "")
	state := sections[2]
	assert.Contains(t, state.Text, "relevant slice")
	assert.Contains(t, state.Text, "## SYS")
	assert.NotContains(t, state.Text, "<operations>", "slices are not Format E")
}

func TestBuild_ChatHistoryLastN(t *testing.T) {
	svc := newService(t)
	for _, content := range []string{"first", "second", "third"} {
		svc.AppendMessage("chat-1", dataservice.RoleUser, content, "")
		svc.AppendMessage("chat-1", dataservice.RoleAssistant, "re: "+content, "")
	}

	sections := New(svc, WithHistoryLimit(2)).Build("chat-1", nil, "")
	require.Len(t, sections, 4)
	history := sections[3]
	assert.Equal(t, SectionChatHistory, history.Name)
	assert.Contains(t, history.Text, "USER: third")
	assert.Contains(t, history.Text, "ASSISTANT: re: third")
	assert.NotContains(t, history.Text, "second", "only the last two messages remain")
}

func TestBuild_RulesFileOverridesCriticalErrors(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "rules.md")
	require.NoError(t, os.WriteFile(path, []byte("- Never delete SYS roots."), 0o644))

	sections := New(svc, WithRulesFile(path)).Build("", nil, "")
	assert.Contains(t, sections[1].Text, "Never delete SYS roots.")
	assert.NotContains(t, sections[1].Text, "Placing operations outside")

	// An unreadable file falls back to the built-in list.
	sections = New(svc, WithRulesFile(filepath.Join(t.TempDir(), "missing.md"))).Build("", nil, "")
	assert.Contains(t, sections[1].Text, "Placing operations outside")
}

func TestBuild_EmptyGraphState(t *testing.T) {
	svc := dataservice.New(dataservice.Key{})
	sections := New(svc).Build("", nil, "")
	assert.Contains(t, sections[2].Text, "The graph is empty.")
}

func TestBuild_ViewContextInGraphState(t *testing.T) {
	svc := newService(t)

	sections := New(svc).Build("", nil, "hierarchy view focused on Order.SY.001")
	assert.Contains(t, sections[2].Text, "The user's canvas shows: hierarchy view focused on Order.SY.001")

	slice := slicer.New(svc).Extract("what is in this model", 0)
	sections = New(svc).Build("", slice, "allocation view")
	assert.Contains(t, sections[2].Text, "The user's canvas shows: allocation view")
	assert.Contains(t, sections[2].Text, "relevant slice")
}
