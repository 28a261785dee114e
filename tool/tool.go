//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool interfaces and registry exposed to the LLM
// engine.
package tool

import "context"

// Tool describes a capability the LLM may invoke mid-response.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool is a tool that can be executed with JSON arguments. Calls are
// synchronous relative to the engine's tool-call loop.
type CallableTool interface {
	// Call runs the tool with the provided JSON-encoded arguments and returns
	// the result of execution or an error if the operation fails.
	Call(ctx context.Context, jsonArgs []byte) (any, error)

	Tool
}

// Declaration describes the metadata of a tool, such as its name,
// description, and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool.
	Name string `json:"name"`

	// Description explains the tool's purpose and functionality.
	Description string `json:"description"`

	// InputSchema defines the expected input for the tool in JSON schema format.
	InputSchema *Schema `json:"inputSchema"`
}

// Schema is the subset of JSON Schema used to describe tool arguments.
type Schema struct {
	// Type specifies the data type (e.g., "object", "string").
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Enum restricts string values to a closed set.
	Enum []string `json:"enum,omitempty"`
	// Items defines the element schema for array types.
	Items *Schema `json:"items,omitempty"`
}
