//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package dataservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/graph"
)

func TestFor_MemoizesPerWorkspaceSystem(t *testing.T) {
	t.Cleanup(ResetAll)

	a := For("w1", "s1")
	b := For("w1", "s1")
	c := For("w1", "s2")
	assert.Same(t, a, b, "one instance per (workspace, system)")
	assert.NotSame(t, a, c)

	ResetAll()
	d := For("w1", "s1")
	assert.NotSame(t, a, d, "ResetAll clears the memoization table")
}

func TestCache_VersionScopingAndSimilarity(t *testing.T) {
	svc := New(Key{WorkspaceID: "w", SystemID: "s"})
	svc.CacheResponse("add a payment function", 3, "done", "+ Pay.FN.001|x")

	// Identical query, same version: hit.
	hit := svc.CheckCache("add a payment function", 3)
	require.NotNil(t, hit)
	assert.Equal(t, "done", hit.Response)
	assert.Equal(t, "+ Pay.FN.001|x", hit.Operations)

	// Same query, different graph version: miss.
	assert.Nil(t, svc.CheckCache("add a payment function", 4), "stale versions are misses")

	// Near-identical wording, same version: still a hit.
	require.NotNil(t, svc.CheckCache("add a payment function now", 3))

	// Unrelated query: miss.
	assert.Nil(t, svc.CheckCache("delete every requirement", 3))
}

func TestCache_TTLExpiry(t *testing.T) {
	current := time.Unix(1000, 0)
	svc := New(Key{}, WithCacheTTL(time.Hour), WithClock(func() time.Time { return current }))

	svc.CacheResponse("query", 1, "response", "")
	require.NotNil(t, svc.CheckCache("query", 1))

	current = current.Add(2 * time.Hour)
	assert.Nil(t, svc.CheckCache("query", 1), "expired records are removed on access")
	assert.Nil(t, svc.CheckCache("query", 1))
}

func TestEpisodes_AppendAndLoadContext(t *testing.T) {
	svc := New(Key{})
	for i := 0; i < 5; i++ {
		svc.StoreEpisode("llm-engine", "derive test cases for checkout", i%2 == 0, nil, "")
	}
	svc.StoreEpisode("other-agent", "derive test cases for checkout", true, nil, "")

	episodes := svc.LoadContext("llm-engine", "", 3)
	require.Len(t, episodes, 3, "last-limit episodes for the agent")
	for _, e := range episodes {
		assert.Equal(t, "llm-engine", e.AgentID)
	}

	// Task similarity filter keeps related episodes only.
	svc.StoreEpisode("llm-engine", "allocate functions to modules", true, nil, "")
	related := svc.LoadContext("llm-engine", "derive test cases for checkout flow", 10)
	require.NotEmpty(t, related)
	for _, e := range related {
		assert.Contains(t, e.Task, "test cases")
	}
}

func TestMessages_AppendDeletePreservesOrder(t *testing.T) {
	svc := New(Key{})
	first := svc.AppendMessage("chat-1", RoleUser, "hello", "")
	second := svc.AppendMessage("chat-1", RoleAssistant, "hi", "<operations>\n+ A.FN.001|x\n</operations>")
	third := svc.AppendMessage("chat-1", RoleUser, "thanks", "")

	require.True(t, svc.DeleteMessage("chat-1", second.MessageID))
	messages := svc.Messages("chat-1")
	require.Len(t, messages, 2)
	assert.Equal(t, first.MessageID, messages[0].MessageID)
	assert.Equal(t, third.MessageID, messages[1].MessageID)

	assert.False(t, svc.DeleteMessage("chat-1", "missing"))
}

func TestService_GraphDelegationAndChangeProxy(t *testing.T) {
	svc := New(Key{})
	var events []graph.ChangeEvent
	svc.OnGraphChange(func(evt graph.ChangeEvent) {
		events = append(events, evt)
	})

	diff := &graph.Diff{NodeOps: []graph.NodeOp{{Op: graph.OpAdd, SemanticID: "Order.SY.001", Description: "root"}}}
	_, err := svc.ApplyDiff(diff)
	require.NoError(t, err)

	assert.Equal(t, int64(1), svc.GetVersion())
	_, ok := svc.GetNode("Order.SY.001")
	assert.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, graph.OpAdd, events[0].Kind)
}
