//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package response extracts operations blocks from LLM output, for both
// completed responses and partial streams.
package response

import (
	"regexp"
	"strings"
)

var (
	blockRe    = regexp.MustCompile(`(?is)<operations>(.*?)</operations>`)
	openTagRe  = regexp.MustCompile(`(?i)<operations>`)
	closeTagRe = regexp.MustCompile(`(?i)</operations>`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// Parse splits a completed LLM response into its conversational text and the
// authoritative operations string. The contents of every
// <operations>...</operations> block (case-insensitive) are concatenated into
// one synthetic block; operations is nil when the response contains none. The
// returned text has all block spans removed, runs of three or more newlines
// collapsed to two, and surrounding whitespace trimmed.
func Parse(text string) (textResponse string, operations *string) {
	matches := blockRe.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			if inner := strings.TrimSpace(m[1]); inner != "" {
				parts = append(parts, inner)
			}
		}
		merged := strings.Join(parts, "\n")
		operations = &merged
	}

	stripped := blockRe.ReplaceAllString(text, "")
	stripped = newlinesRe.ReplaceAllString(stripped, "\n\n")
	return strings.TrimSpace(stripped), operations
}

// AllCompleteBlocks returns the inner contents of every already-closed
// operations block in a partial stream, in order. The streaming engine emits
// each block as soon as it closes.
func AllCompleteBlocks(partial string) []string {
	matches := blockRe.FindAllStringSubmatch(partial, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// VisibleText returns the portion of a partial stream that is definitely
// conversational text: complete operations blocks are removed, anything
// after an unclosed open tag is withheld, and unless the stream is finished
// a trailing fragment that could still grow into an open tag is withheld
// too. The result only ever grows as the stream extends, so callers can
// emit the unseen suffix after each delta.
func VisibleText(partial string, finished bool) string {
	cleaned := blockRe.ReplaceAllString(partial, "")
	if m := openTagRe.FindStringIndex(cleaned); m != nil {
		return cleaned[:m[0]]
	}
	if finished {
		return cleaned
	}
	return cleaned[:len(cleaned)-openTagPrefixLen(cleaned)]
}

// openTagPrefixLen reports the length of the longest suffix of s that is a
// proper prefix of the operations open tag, case-insensitively.
func openTagPrefixLen(s string) int {
	const tag = "<operations>"
	longest := len(tag) - 1
	if longest > len(s) {
		longest = len(s)
	}
	for n := longest; n > 0; n-- {
		if strings.EqualFold(s[len(s)-n:], tag[:n]) {
			return n
		}
	}
	return 0
}

// InsideOperationsBlock reports whether the partial stream currently sits
// inside an unclosed operations block. The engine suppresses plain-text
// emission while this holds.
func InsideOperationsBlock(partial string) bool {
	opens := len(openTagRe.FindAllStringIndex(partial, -1))
	closes := len(closeTagRe.FindAllStringIndex(partial, -1))
	return opens > closes
}
