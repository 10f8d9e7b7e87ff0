// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/skinchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "SkinTech AI"
	default:
		return string(r)
	}
}

// =============================================================================
// SOURCES
// =============================================================================

// SourceKind distinguishes product recommendations from web citations.
type SourceKind string

const (
	SourceProduct SourceKind = "product"
	SourceWeb     SourceKind = "web"
)

// Source is a citation attached to an assistant message.
type Source struct {
	Kind  SourceKind `json:"type"`
	Title string     `json:"title"`
	URL   string     `json:"url,omitempty"`
}

// CloneSources copies a source list. A nil list stays nil so "never set"
// remains distinguishable from "set to empty".
func CloneSources(src []Source) []Source {
	if src == nil {
		return nil
	}
	out := make([]Source, len(src))
	copy(out, src)
	return out
}

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome records how an assistant message was finalized.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`

	// Finalized messages are immutable.
	Finalized bool    `json:"finalized"`
	Outcome   Outcome `json:"outcome,omitempty"`
}

// NewUserMessage creates a user message. User messages are final at creation.
func NewUserMessage(content string) Message {
	return Message{
		ID:        NewID(),
		Role:      RoleUser,
		Timestamp: time.Now(),
		Content:   content,
		Finalized: true,
		Outcome:   OutcomeCompleted,
	}
}

// NewAssistantPlaceholder creates an empty assistant message awaiting a stream.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:        NewID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Sources = CloneSources(m.Sources)
	return m
}

// IsStreaming reports whether the message is an assistant message still accepting deltas.
func (m Message) IsStreaming() bool {
	return m.Role == RoleAssistant && !m.Finalized
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns the content truncated to maxWidth terminal cells.
func (m Message) Preview(maxWidth int) string {
	return util.TruncateWidth(util.SingleLine(m.Content), maxWidth)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID creates a unique message ID.
func NewID() string {
	return "msg_" + uuid.NewString()
}
