//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package dataservice

import "time"

// MinCacheSimilarity is the cosine similarity threshold for a cache hit.
const MinCacheSimilarity = 0.85

// CacheRecord is a cached LLM response scoped to one graph version.
type CacheRecord struct {
	Query        string    `json:"query"`
	GraphVersion int64     `json:"graphVersion"`
	Response     string    `json:"response"`
	Operations   string    `json:"operations,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	TTL          time.Duration `json:"ttl"`

	embedding []float64
}

func (r *CacheRecord) expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.TTL
}

// CacheResponse stores a response for the given query at the given graph
// version. The query embedding is computed once at storage time.
func (s *Service) CacheResponse(query string, graphVersion int64, response, operations string) {
	record := &CacheRecord{
		Query:        query,
		GraphVersion: graphVersion,
		Response:     response,
		Operations:   operations,
		CreatedAt:    s.now(),
		TTL:          s.cacheTTL,
		embedding:    s.embedder.Embed(query),
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[graphVersion] = append(s.cache[graphVersion], record)
}

// CheckCache performs a similarity search over the records stored at exactly
// the given graph version and returns the best match with cosine similarity
// of at least MinCacheSimilarity, or nil on a miss. Records from other
// versions are never returned; expired records are removed on access.
func (s *Service) CheckCache(query string, graphVersion int64) *CacheRecord {
	queryEmbedding := s.embedder.Embed(query)
	now := s.now()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	records := s.cache[graphVersion]
	live := records[:0]
	var best *CacheRecord
	bestScore := 0.0
	for _, record := range records {
		if record.expired(now) {
			continue
		}
		live = append(live, record)
		if score := CosineSimilarity(queryEmbedding, record.embedding); score >= MinCacheSimilarity && score > bestScore {
			best = record
			bestScore = score
		}
	}
	if len(live) == 0 {
		delete(s.cache, graphVersion)
	} else {
		s.cache[graphVersion] = live
	}
	return best
}
