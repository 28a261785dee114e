//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package formate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/semgraph/graph"
)

func TestParseDiff_NodesAndEdges(t *testing.T) {
	text := `<operations>
<base_snapshot>Order.SY.001@v3</base_snapshot>
<view_context>hierarchy</view_context>
## Nodes
# a comment line
+ Order.SY.001|Order management [phase:1, volatility:low]
~ Checkout.UC.001|Refined checkout
- Legacy.FN.001
## Edges
+ Order.SY.001 -cp-> Checkout.UC.001
- Order.SY.001 -rel-> Legacy.FN.001
</operations>`

	diff, err := ParseDiff(text)
	require.NoError(t, err)
	assert.Equal(t, "Order.SY.001@v3", diff.BaseSnapshot)
	assert.Equal(t, "hierarchy", diff.ViewContext)
	require.Len(t, diff.NodeOps, 3)
	require.Len(t, diff.EdgeOps, 2)

	add := diff.NodeOps[0]
	assert.Equal(t, graph.OpAdd, add.Op)
	assert.Equal(t, "Order.SY.001", add.SemanticID)
	assert.Equal(t, "Order management", add.Description)
	assert.Equal(t, float64(1), add.Attributes["phase"])
	assert.Equal(t, "low", add.Attributes["volatility"])

	assert.Equal(t, graph.OpUpdate, diff.NodeOps[1].Op)
	assert.Equal(t, graph.OpRemove, diff.NodeOps[2].Op)

	assert.Equal(t, graph.EdgeTypeCompose, diff.EdgeOps[0].Type)
	assert.Equal(t, graph.OpRemove, diff.EdgeOps[1].Op)
	assert.Equal(t, graph.EdgeTypeRelation, diff.EdgeOps[1].Type)
}

func TestParseDiff_WithoutSectionMarkers(t *testing.T) {
	diff, err := ParseDiff("\n+ A.FN.001|x\n")
	require.NoError(t, err)
	require.Len(t, diff.NodeOps, 1)
	assert.Equal(t, graph.OpAdd, diff.NodeOps[0].Op)
	assert.Equal(t, "A.FN.001", diff.NodeOps[0].SemanticID)
	assert.Equal(t, "x", diff.NodeOps[0].Description)
}

func TestParseDiff_JSONAttributes(t *testing.T) {
	diff, err := ParseDiff(`+ A.FN.001|desc [pos:{"x":10,"y":20}, tags:["a","b"], zoom:1.5, active:true]`)
	require.NoError(t, err)
	require.Len(t, diff.NodeOps, 1)
	attrs := diff.NodeOps[0].Attributes
	assert.Equal(t, map[string]any{"x": float64(10), "y": float64(20)}, attrs["pos"])
	assert.Equal(t, []any{"a", "b"}, attrs["tags"])
	assert.Equal(t, 1.5, attrs["zoom"])
	assert.Equal(t, true, attrs["active"])
	assert.Equal(t, "desc", diff.NodeOps[0].Description)
}

func TestParseDiff_AttributeBlockBoundaries(t *testing.T) {
	// An array nested inside an object value keeps the block intact.
	diff, err := ParseDiff(`+ A.FN.001|desc [layout:{"cols":[1,2,3]}, phase:2]`)
	require.NoError(t, err)
	require.Len(t, diff.NodeOps, 1)
	attrs := diff.NodeOps[0].Attributes
	require.NotNil(t, attrs)
	assert.Equal(t, map[string]any{"cols": []any{float64(1), float64(2), float64(3)}}, attrs["layout"])
	assert.Equal(t, float64(2), attrs["phase"])

	// A bracketed span inside the description is not the attribute block.
	diff, err = ParseDiff(`+ A.FN.001|uses array[3] indexing [phase:1]`)
	require.NoError(t, err)
	require.Len(t, diff.NodeOps, 1)
	assert.Equal(t, "uses array[3] indexing", diff.NodeOps[0].Description)
	assert.Equal(t, float64(1), diff.NodeOps[0].Attributes["phase"])

	// A string value containing "]" does not end the block early.
	diff, err = ParseDiff(`+ A.FN.001|desc [label:"a]b"]`)
	require.NoError(t, err)
	assert.Equal(t, "a]b", diff.NodeOps[0].Attributes["label"])
}

func TestParseDiff_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "invalid line", text: "hello world"},
		{name: "unknown type abbreviation", text: "+ A.XX.001|x"},
		{name: "unknown edge arrow", text: "+ A.FN.001 -zz-> B.FN.002"},
		{name: "unterminated JSON attribute", text: `+ A.FN.001|x [pos:{"x":10]`},
		{name: "edge update", text: "~ A.FN.001 -io-> B.FN.002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDiff(tt.text)
			require.Error(t, err)
		})
	}
}

func TestSerializeDiff_RoundTrip(t *testing.T) {
	texts := []string{
		"+ Order.SY.001|Order management [phase:1, volatility:low]\n+ Order.SY.001 -cp-> Checkout.UC.001",
		"- Gone.FN.001",
		"~ Order.SY.001|New description [phase:2]",
		`+ A.FN.001|desc [pos:{"x":1}, label:"with, comma"]`,
		"<base_snapshot>S@v1</base_snapshot>\n+ A.FN.001|x",
	}
	for _, text := range texts {
		diff, err := ParseDiff(text)
		require.NoError(t, err, "parse %q", text)
		again, err := ParseDiff(SerializeDiff(diff))
		require.NoError(t, err, "reparse of %q", SerializeDiff(diff))
		assert.Equal(t, diff, again, "round trip of %q", text)
	}
}

func TestSerializeGraph_SnapshotOrder(t *testing.T) {
	store := graph.NewStore()
	diff, err := ParseDiff(`<operations>
## Nodes
+ B.UC.001|second
+ A.SY.001|first
## Edges
+ A.SY.001 -cp-> B.UC.001
</operations>`)
	require.NoError(t, err)
	_, err = store.ApplyDiff(diff)
	require.NoError(t, err)

	text := SerializeGraph(store.ToState(), "")
	parsed, err := ParseDiff(text)
	require.NoError(t, err)
	require.Len(t, parsed.NodeOps, 2)
	assert.Equal(t, "A.SY.001", parsed.NodeOps[0].SemanticID, "nodes sorted by semantic ID")
	assert.Equal(t, "B.UC.001", parsed.NodeOps[1].SemanticID)
	require.Len(t, parsed.EdgeOps, 1)

	// Rebuilding an empty store from the snapshot yields the same contents.
	rebuilt := graph.NewStore()
	_, err = rebuilt.ApplyDiff(parsed)
	require.NoError(t, err)
	assert.Equal(t, len(store.GetAllNodes()), len(rebuilt.GetAllNodes()))
	assert.Equal(t, len(store.GetAllEdges()), len(rebuilt.GetAllEdges()))
}
