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
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/semgraph/graph"
)

var edgeLineRe = regexp.MustCompile(`^(\S+)\s+-(\w+)->\s+(\S+)$`)

// ParseDiff parses a Format E operations block into a diff. The surrounding
// <operations> tags are optional; section markers order node operations
// before edge operations but edge lines are recognized by their arrow in
// either section.
func ParseDiff(text string) (*graph.Diff, error) {
	diff := &graph.Diff{}
	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case line == OpenTag || line == CloseTag:
			continue
		case line == nodesSection || line == edgesSection:
			continue
		case strings.HasPrefix(line, "#"):
			// Comment line; the "##" section markers are matched above.
			continue
		case strings.HasPrefix(line, baseSnapshotOpen):
			diff.BaseSnapshot = strings.TrimSuffix(strings.TrimPrefix(line, baseSnapshotOpen), baseSnapshotClose)
			continue
		case strings.HasPrefix(line, viewContextOpen):
			diff.ViewContext = strings.TrimSuffix(strings.TrimPrefix(line, viewContextOpen), viewContextClose)
			continue
		}

		var kind graph.OpKind
		switch {
		case strings.HasPrefix(line, "+ "):
			kind = graph.OpAdd
		case strings.HasPrefix(line, "- "):
			kind = graph.OpRemove
		case strings.HasPrefix(line, "~ "):
			kind = graph.OpUpdate
		default:
			return nil, fmt.Errorf("%w %d: %q", ErrInvalidLine, lineNo+1, line)
		}
		body := strings.TrimSpace(line[2:])

		if m := edgeLineRe.FindStringSubmatch(body); m != nil {
			if kind == graph.OpUpdate {
				return nil, fmt.Errorf("%w %d: edges cannot be updated in place: %q", ErrInvalidLine, lineNo+1, line)
			}
			edgeType, err := ParseArrow(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			diff.EdgeOps = append(diff.EdgeOps, graph.EdgeOp{
				Op:       kind,
				SourceID: m[1],
				Type:     edgeType,
				TargetID: m[3],
			})
			continue
		}

		op, err := parseNodeLine(kind, body)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		diff.NodeOps = append(diff.NodeOps, op)
	}
	return diff, nil
}

// parseNodeLine parses "SemanticId|Description [key:value, ...]". Both the
// description and the bracketed attribute block are optional.
func parseNodeLine(kind graph.OpKind, body string) (graph.NodeOp, error) {
	op := graph.NodeOp{Op: kind}

	// Attributes are the trailing bracketed block, if any. A bracketed span
	// whose entries are not key:value shaped stays part of the description.
	if open := attributeBlockStart(body); open >= 0 {
		attrs, err := parseAttributes(body[open+1 : len(body)-1])
		switch {
		case err == nil:
			op.Attributes = attrs
			body = strings.TrimSpace(body[:open])
		case errors.Is(err, ErrInvalidLine):
			// Not an attribute block.
		default:
			return op, err
		}
	}

	if id, desc, ok := strings.Cut(body, "|"); ok {
		op.SemanticID = strings.TrimSpace(id)
		op.Description = strings.TrimSpace(desc)
	} else {
		op.SemanticID = strings.TrimSpace(body)
	}
	if op.SemanticID == "" {
		return op, fmt.Errorf("%w: missing semantic ID in %q", ErrInvalidLine, body)
	}
	if kind != graph.OpRemove {
		if _, _, err := graph.ParseSemanticID(op.SemanticID); err != nil {
			return op, err
		}
	}
	return op, nil
}

// attributeBlockStart locates the opening bracket of a trailing attribute
// block: the top-level "[" whose matching "]" is the final character of the
// body. JSON array values nest inside it, so the match is found by bracket
// depth, with quoted strings skipped once inside the block. Returns -1 when
// the body does not end in a balanced bracketed span.
func attributeBlockStart(body string) int {
	depth := 0
	start := -1
	var inString, escaped bool
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case depth > 0 && c == '"':
			inString = !inString
		case inString:
		case c == '[':
			if depth == 0 {
				start = i
			}
			depth++
		case c == ']':
			depth--
			if depth == 0 && i == len(body)-1 {
				return start
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}

// parseAttributes parses "key:value, key:value" entries. Values that look
// like JSON are parsed as JSON; anything else is stored as a string.
func parseAttributes(body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	attrs := make(map[string]any)
	for _, entry := range splitTopLevel(body) {
		key, value, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: attribute entry %q has no value", ErrInvalidLine, entry)
		}
		key = strings.TrimSpace(key)
		parsed, err := parseAttributeValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		attrs[key] = parsed
	}
	return attrs, nil
}

// splitTopLevel splits on commas that sit outside JSON braces, brackets and
// quoted strings, so object and array attribute values survive intact.
func splitTopLevel(s string) []string {
	var parts []string
	var depth int
	var inString, escaped bool
	start := 0
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString:
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '{' || r == '[':
			depth++
		case r == '}' || r == ']':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// parseAttributeValue decodes a value that looks like JSON and keeps plain
// words as strings. A value that opens JSON syntax but does not close it is
// an unterminated-value error.
func parseAttributeValue(value string) (any, error) {
	if value == "" {
		return "", nil
	}
	looksJSON := strings.HasPrefix(value, "{") || strings.HasPrefix(value, "[") || strings.HasPrefix(value, `"`)
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		if looksJSON {
			return nil, fmt.Errorf("unterminated JSON attribute value: %q", value)
		}
		return value, nil
	}
	return parsed, nil
}
