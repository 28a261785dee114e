//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTool struct {
	name string
}

func (s *staticTool) Declaration() *Declaration {
	return &Declaration{Name: s.name, Description: "static", InputSchema: &Schema{Type: "object"}}
}

func (s *staticTool) Call(context.Context, []byte) (any, error) {
	return s.name, nil
}

func TestRegistry_RegisterGetDeclarations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&staticTool{name: "beta"}))
	require.NoError(t, r.Register(&staticTool{name: "alpha"}))

	got, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Declaration().Name)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	decls := r.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "beta", decls[0].Name, "declarations keep registration order")
	assert.Equal(t, "alpha", decls[1].Name)
}

func TestRegistry_RejectsDuplicatesAndAnonymous(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&staticTool{name: "alpha"}))
	assert.Error(t, r.Register(&staticTool{name: "alpha"}))
	assert.Error(t, r.Register(&staticTool{name: ""}))
}
