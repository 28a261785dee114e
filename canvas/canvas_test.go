//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package canvas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/graph"
)

func seedCanvas(t *testing.T) *dataservice.Service {
	t.Helper()
	svc := dataservice.New(dataservice.Key{WorkspaceID: "w", SystemID: "s"})
	for _, n := range []struct {
		id    string
		desc  string
		attrs map[string]any
	}{
		{"Order.SY.001", "Order system", map[string]any{"phase": 1}},
		{"Checkout.UC.001", "Checkout", map[string]any{"phase": 2}},
		{"Pay.FN.001", "Process payment", map[string]any{"phase": 3}},
		{"Billing.MD.001", "Billing module", map[string]any{"phase": 4}},
		{"Old.FN.002", "Removed function", map[string]any{"deleted": true}},
	} {
		node, err := graph.NewNode(n.id, n.desc, n.attrs)
		require.NoError(t, err)
		require.NoError(t, svc.SetNode(node, false))
	}
	for _, e := range []struct {
		src string
		typ graph.EdgeType
		tgt string
	}{
		{"Order.SY.001", graph.EdgeTypeCompose, "Checkout.UC.001"},
		{"Checkout.UC.001", graph.EdgeTypeCompose, "Pay.FN.001"},
		{"Billing.MD.001", graph.EdgeTypeAllocate, "Pay.FN.001"},
	} {
		require.NoError(t, svc.SetEdge(graph.NewEdge(e.src, e.typ, e.tgt), false))
	}
	return svc
}

func TestRender_HierarchyForest(t *testing.T) {
	c := New(seedCanvas(t))
	out := c.Render()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Contains(t, lines, "[SYS] Order.SY.001: Order")
	assert.Contains(t, lines, "  [UC] Checkout.UC.001: Checkout")
	assert.Contains(t, lines, "    [FUNC] Pay.FN.001: Pay")
	// allocate edges are invisible on the hierarchy view, so the module is
	// a root of its own.
	assert.Contains(t, lines, "[MOD] Billing.MD.001: Billing")
	assert.NotContains(t, out, "Old.FN.002", "deleted nodes are hidden by default")
}

func TestRender_AllocationViewEdges(t *testing.T) {
	c := New(seedCanvas(t))
	require.NoError(t, c.SetView("allocation"))
	out := c.Render()

	assert.Contains(t, out, "[MOD] Billing.MD.001: Billing\n  [FUNC] Pay.FN.001: Pay",
		"allocate edge parents the function under the module")
	assert.Contains(t, out, "[SYS] Order.SY.001", "compose edges are hidden, so everything else is a root")
}

func TestCommands_FilterFocusSelect(t *testing.T) {
	c := New(seedCanvas(t))

	_, err := c.HandleCommand("/filter type=FN,UC")
	require.NoError(t, err)
	out := c.Render()
	assert.NotContains(t, out, "Order.SY.001")
	assert.Contains(t, out, "Checkout.UC.001")
	assert.Contains(t, out, "Pay.FN.001")

	_, err = c.HandleCommand("/focus Pay.FN.001")
	require.NoError(t, err)
	_, err = c.HandleCommand("/select Checkout.UC.001")
	require.NoError(t, err)
	out = c.Render()
	assert.Contains(t, out, "Pay.FN.001: Pay *focus*")
	assert.Contains(t, out, "Checkout.UC.001: Checkout (selected)")

	_, err = c.HandleCommand("/clear-filter")
	require.NoError(t, err)
	_, err = c.HandleCommand("/clear-selection")
	require.NoError(t, err)
	out = c.Render()
	assert.Contains(t, out, "Order.SY.001")
	assert.NotContains(t, out, "(selected)")
}

func TestCommands_PhaseSearchDeleted(t *testing.T) {
	c := New(seedCanvas(t))

	_, err := c.HandleCommand("/filter phase=2")
	require.NoError(t, err)
	out := c.Render()
	assert.Contains(t, out, "Checkout.UC.001")
	assert.NotContains(t, out, "Pay.FN.001")

	_, err = c.HandleCommand("/clear-filter")
	require.NoError(t, err)
	_, err = c.HandleCommand("/filter search=payment")
	require.NoError(t, err)
	out = c.Render()
	assert.Contains(t, out, "Pay.FN.001", "search matches the description")
	assert.NotContains(t, out, "Order.SY.001")

	_, err = c.HandleCommand("/clear-filter")
	require.NoError(t, err)
	_, err = c.HandleCommand("/filter deleted=true")
	require.NoError(t, err)
	assert.Contains(t, c.Render(), "Old.FN.002")
}

func TestCommands_Errors(t *testing.T) {
	c := New(seedCanvas(t))
	for _, cmd := range []string{
		"/view cubist",
		"/filter phase=two",
		"/filter nonsense",
		"/filter color=red",
		"/teleport",
		"/view",
	} {
		_, err := c.HandleCommand(cmd)
		assert.Error(t, err, "command: %s", cmd)
	}
	assert.Equal(t, ViewHierarchy, c.View(), "failed commands leave state untouched")
}

func TestRender_IsPureOfController(t *testing.T) {
	svc := seedCanvas(t)
	nodes, edges := svc.GetAllNodes(), svc.GetAllEdges()

	first := Render(nodes, edges, Options{View: ViewAll})
	second := Render(nodes, edges, Options{View: ViewAll})
	assert.Equal(t, first, second, "render is deterministic")
	assert.Contains(t, first, "Billing.MD.001")
}
