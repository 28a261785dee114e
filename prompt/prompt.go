//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package prompt assembles the ordered, cache-aware prompt sections sent to
// the LLM provider.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/formate"
	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/slicer"
)

// Section is one prompt section. Ephemeral sections carry a cache hint: the
// provider transport caches the prefix when the backend supports it and
// ignores the flag otherwise.
type Section struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Ephemeral bool   `json:"ephemeral"`
}

// Section name constants, in assembly order.
const (
	SectionOntology    = "ontology"
	SectionMethodology = "methodology"
	SectionGraphState  = "graph_state"
	SectionChatHistory = "chat_history"
)

// DefaultHistoryLimit bounds the chat history section.
const DefaultHistoryLimit = 20

// Option configures the assembler.
type Option func(*Assembler)

// WithRulesFile loads the critical-errors list of the methodology guide from
// a file. A missing or unreadable file leaves the built-in list in place.
func WithRulesFile(path string) Option {
	return func(a *Assembler) {
		a.rulesPath = path
	}
}

// WithHistoryLimit caps how many trailing chat messages the history section
// includes. Zero disables the section.
func WithHistoryLimit(limit int) Option {
	return func(a *Assembler) {
		a.historyLimit = limit
	}
}

// Assembler builds the prompt sections for one graph-editing turn.
type Assembler struct {
	svc          *dataservice.Service
	rulesPath    string
	historyLimit int
}

// New creates a prompt assembler over the given data service.
func New(svc *dataservice.Service, opts ...Option) *Assembler {
	a := &Assembler{svc: svc, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build returns the ordered prompt sections: ontology, methodology, graph
// state, and chat history. When slice is non-nil the graph state section
// carries the slice serialization instead of the full graph; viewContext
// describes what the user's canvas currently shows and may be empty. The
// user message itself is not a section; it becomes the user turn of the
// request.
func (a *Assembler) Build(chatID string, slice *slicer.Slice, viewContext string) []Section {
	sections := []Section{
		{Name: SectionOntology, Text: ontologyText, Ephemeral: true},
		{Name: SectionMethodology, Text: a.methodologyText(), Ephemeral: true},
		{Name: SectionGraphState, Text: a.graphStateText(slice, viewContext), Ephemeral: true},
	}
	if history := a.historyText(chatID); history != "" {
		sections = append(sections, Section{Name: SectionChatHistory, Text: history, Ephemeral: true})
	}
	return sections
}

func (a *Assembler) graphStateText(slice *slicer.Slice, viewContext string) string {
	var view string
	if viewContext != "" {
		view = "The user's canvas shows: " + viewContext + "\n\n"
	}
	if slice != nil {
		return "# Current graph state (relevant slice)\n\n" + view + slicer.Serialize(slice)
	}
	state := a.svc.ToState()
	if len(state.Nodes) == 0 {
		return "# Current graph state\n\n" + view + "The graph is empty."
	}
	return "# Current graph state\n\n" + view + formate.SerializeGraph(state, "")
}

func (a *Assembler) historyText(chatID string) string {
	if a.historyLimit <= 0 || chatID == "" {
		return ""
	}
	messages := a.svc.Messages(chatID)
	if len(messages) > a.historyLimit {
		messages = messages[len(messages)-a.historyLimit:]
	}
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Conversation so far\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// methodologyText renders the methodology guide, substituting the
// critical-errors list from the rules file when one is configured.
func (a *Assembler) methodologyText() string {
	critical := criticalErrorsText
	if a.rulesPath != "" {
		data, err := os.ReadFile(a.rulesPath)
		if err != nil {
			log.Warnf("prompt: rules file %s unreadable, using built-in list: %v", a.rulesPath, err)
		} else if text := strings.TrimSpace(string(data)); text != "" {
			critical = text
		}
	}
	return methodologyHeader + "\n\n## Critical errors to avoid\n\n" + critical + "\n\n" + checklistText
}
