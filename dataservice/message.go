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
	"time"

	"github.com/google/uuid"
)

// Role is the author role of a chat message.
type Role string

// Role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat message. Messages are append-only inside a chat;
// deleting one does not reorder the remaining sequence.
type Message struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	// Operations carries a Format E operations block, present only on
	// assistant messages that propose graph mutations.
	Operations string    `json:"operations,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AppendMessage appends a message to a chat and returns the stored copy.
func (s *Service) AppendMessage(chatID string, role Role, content, operations string) *Message {
	message := &Message{
		MessageID:  uuid.NewString(),
		ChatID:     chatID,
		Role:       role,
		Content:    content,
		Operations: operations,
		Timestamp:  s.now(),
	}
	s.messageMu.Lock()
	defer s.messageMu.Unlock()
	s.messages[chatID] = append(s.messages[chatID], message)
	return message
}

// Messages returns the messages of a chat in append order.
func (s *Service) Messages(chatID string) []*Message {
	s.messageMu.RLock()
	defer s.messageMu.RUnlock()
	out := make([]*Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out
}

// RestoreMessages loads persisted messages, preserving their IDs and
// timestamps. Used on session restore; ordinary writes go through
// AppendMessage.
func (s *Service) RestoreMessages(messages []*Message) {
	s.messageMu.Lock()
	defer s.messageMu.Unlock()
	for _, m := range messages {
		clone := *m
		s.messages[m.ChatID] = append(s.messages[m.ChatID], &clone)
	}
}

// DeleteMessage removes a message by ID. The remaining sequence keeps its
// order.
func (s *Service) DeleteMessage(chatID, messageID string) bool {
	s.messageMu.Lock()
	defer s.messageMu.Unlock()
	messages := s.messages[chatID]
	for i, m := range messages {
		if m.MessageID == messageID {
			s.messages[chatID] = append(messages[:i], messages[i+1:]...)
			return true
		}
	}
	return false
}
