// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/jeranaias/skinchat/internal/util"
)

// TitleWidth is the display width used for conversation titles.
const TitleWidth = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a point-in-time snapshot of a session's history.
// ID is the backend-assigned conversation identifier, empty until assigned.
type Conversation struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	TakenAt  time.Time `json:"taken_at"`
}

// NewConversation builds a snapshot from a message list. Messages are deep-copied.
func NewConversation(id string, messages []Message) Conversation {
	msgs := make([]Message, len(messages))
	for i, m := range messages {
		msgs[i] = m.Clone()
	}
	return Conversation{
		ID:       id,
		Title:    TitleFor(msgs),
		Messages: msgs,
		TakenAt:  time.Now(),
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// GetMessageByID returns the message with the given ID, or false.
func (c Conversation) GetMessageByID(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// GetLastAssistantMessage returns the most recent assistant message, or false.
func (c Conversation) GetLastAssistantMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// MessageCount returns the number of messages.
func (c Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// TitleFor derives a title from the first user message.
func TitleFor(messages []Message) string {
	for _, m := range messages {
		if m.Role == RoleUser {
			return util.TruncateWidth(util.SingleLine(m.Content), TitleWidth)
		}
	}
	return "New conversation"
}
