//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NoBlock(t *testing.T) {
	text, operations := Parse("Just an explanation, no edits needed.")
	assert.Equal(t, "Just an explanation, no edits needed.", text)
	assert.Nil(t, operations)
}

func TestParse_SingleBlock(t *testing.T) {
	input := "I added the function.\n\n<operations>\n+ Pay.FN.001|Process payment\n</operations>\n\nDone."
	text, operations := Parse(input)

	assert.Equal(t, "I added the function.\n\nDone.", text)
	require.NotNil(t, operations)
	assert.Equal(t, "+ Pay.FN.001|Process payment", *operations)
}

func TestParse_MergesMultipleBlocksCaseInsensitive(t *testing.T) {
	input := "First:\n<operations>\n+ A.FN.001|a\n</operations>\nthen:\n<OPERATIONS>\n+ B.FN.002|b\n</OPERATIONS>\nend."
	text, operations := Parse(input)

	require.NotNil(t, operations)
	assert.Equal(t, "+ A.FN.001|a\n+ B.FN.002|b", *operations)
	assert.Equal(t, "First:\n\nthen:\n\nend.", text)
}

func TestParse_CollapsesNewlineRuns(t *testing.T) {
	input := "Before.\n<operations>\n+ A.FN.001|a\n</operations>\n\n\n\nAfter."
	text, _ := Parse(input)
	assert.Equal(t, "Before.\n\nAfter.", text)
}

func TestParse_EmptyBlockYieldsEmptyOperations(t *testing.T) {
	text, operations := Parse("Nothing to change.\n<operations>\n</operations>")
	assert.Equal(t, "Nothing to change.", text)
	require.NotNil(t, operations, "an empty block is still a block")
	assert.Equal(t, "", *operations)
}

func TestAllCompleteBlocks_StreamingOrder(t *testing.T) {
	partial := "<operations>\n+ A.FN.001|a\n</operations>\ntext\n<operations>\n+ B.FN.002|b\n</operations>\n<operations>\n+ C"
	blocks := AllCompleteBlocks(partial)
	require.Len(t, blocks, 2, "the third block is still open")
	assert.Equal(t, "+ A.FN.001|a", blocks[0])
	assert.Equal(t, "+ B.FN.002|b", blocks[1])

	assert.Nil(t, AllCompleteBlocks("no blocks here"))
}

func TestInsideOperationsBlock(t *testing.T) {
	assert.False(t, InsideOperationsBlock("plain text"))
	assert.True(t, InsideOperationsBlock("before <operations>\n+ A.FN.001"))
	assert.False(t, InsideOperationsBlock("<operations>\n+ A.FN.001\n</operations> after"))
	assert.True(t, InsideOperationsBlock("<operations>x</operations><OPERATIONS>"))
}

func TestVisibleText_HoldsBackPartialOpenTag(t *testing.T) {
	assert.Equal(t, "Adding a node.\n", VisibleText("Adding a node.\n<op", false),
		"a fragment that could grow into an open tag is withheld")
	assert.Equal(t, "Adding a node.\n", VisibleText("Adding a node.\n<operatio", false))
	assert.Equal(t, "a < b", VisibleText("a < b", false),
		"a lone bracket that can no longer become a tag flushes")
	assert.Equal(t, "price <operand", VisibleText("price <operand", false),
		"a disambiguated non-tag fragment flushes")
}

func TestVisibleText_InsideAndAfterBlocks(t *testing.T) {
	assert.Equal(t, "intro\n", VisibleText("intro\n<operations>\n+ A.FN.001|x", false),
		"text after an open tag is withheld")
	assert.Equal(t, "intro\n\nDone.", VisibleText("intro\n<operations>\n+ A.FN.001|x\n</operations>\nDone.", false),
		"a closed block span vanishes from the text")
	assert.Equal(t, "a\nb", VisibleText("a\n<operations>x</operations>b\n<OPERATIONS>y", false),
		"case-insensitive second open tag withholds again")
}

func TestVisibleText_FinishedFlushesHeldFragment(t *testing.T) {
	assert.Equal(t, "trailing <oper", VisibleText("trailing <oper", true),
		"a finished stream flushes the held fragment as plain text")
	assert.Equal(t, "intro\n", VisibleText("intro\n<operations>\n+ A.FN.001|x", true),
		"an unterminated block still never surfaces as text")
}

func TestVisibleText_GrowsMonotonically(t *testing.T) {
	stream := "Adding a node.\n<operations>\n+ A.FN.001|x\n</operations>\nDone."
	var previous string
	for i := 6; i <= len(stream); i += 6 {
		visible := VisibleText(stream[:i], i == len(stream))
		require.True(t, len(visible) >= len(previous) && visible[:len(previous)] == previous,
			"visible text at %d extends the previous value", i)
		previous = visible
	}
	assert.Equal(t, "Adding a node.\n\nDone.", previous)
}
