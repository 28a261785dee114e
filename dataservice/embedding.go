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
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a vector for similarity search. The default is a
// deterministic local embedder; swap in a provider-backed implementation via
// WithEmbedder when higher recall is needed.
type Embedder interface {
	Embed(text string) []float64
}

// hashEmbedder is a deterministic bag-of-words embedder. Each token is
// hashed into a fixed-dimension vector which is then L2-normalized. It needs
// no network and is stable across processes.
type hashEmbedder struct {
	dim int
}

const defaultEmbeddingDim = 64

// NewHashEmbedder creates the default deterministic embedder.
func NewHashEmbedder() Embedder {
	return &hashEmbedder{dim: defaultEmbeddingDim}
}

// Embed implements the Embedder interface.
func (e *hashEmbedder) Embed(text string) []float64 {
	vec := make([]float64, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors of
// different lengths or zero magnitude yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
