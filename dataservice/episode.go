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

// Episode is one append-only episodic memory entry.
type Episode struct {
	AgentID   string    `json:"agentId"`
	Task      string    `json:"task"`
	Success   bool      `json:"success"`
	Output    any       `json:"output,omitempty"`
	Critique  string    `json:"critique,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// minTaskSimilarity filters LoadContext results when a task is given.
const minTaskSimilarity = 0.5

// StoreEpisode appends an episode to the episodic memory.
func (s *Service) StoreEpisode(agentID, task string, success bool, output any, critique string) {
	episode := &Episode{
		AgentID:   agentID,
		Task:      task,
		Success:   success,
		Output:    output,
		Critique:  critique,
		Timestamp: s.now(),
	}
	s.episodeMu.Lock()
	defer s.episodeMu.Unlock()
	s.episodes = append(s.episodes, episode)
}

// LoadContext returns the last limit episodes for the given agent, oldest
// first. When task is non-empty the episodes are additionally filtered by
// task similarity.
func (s *Service) LoadContext(agentID, task string, limit int) []*Episode {
	var taskEmbedding []float64
	if task != "" {
		taskEmbedding = s.embedder.Embed(task)
	}

	s.episodeMu.RLock()
	defer s.episodeMu.RUnlock()

	var matched []*Episode
	for _, episode := range s.episodes {
		if episode.AgentID != agentID {
			continue
		}
		if taskEmbedding != nil &&
			CosineSimilarity(taskEmbedding, s.embedder.Embed(episode.Task)) < minTaskSimilarity {
			continue
		}
		matched = append(matched, episode)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
