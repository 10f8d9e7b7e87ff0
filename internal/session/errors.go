// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when a user message is empty after trimming.
var ErrInvalidInput = errors.New("message text is empty")

// StateErrorKind classifies a rejected mutation.
type StateErrorKind int

const (
	// StateUnknownMessage means no message has the given ID.
	StateUnknownMessage StateErrorKind = iota
	// StateFinalized means the message no longer accepts mutations.
	StateFinalized
	// StateNotAssistant means the message is not an assistant message.
	StateNotAssistant
	// StateConversationConflict means a second, different conversation ID arrived.
	StateConversationConflict
)

// String returns a short name for the kind.
func (k StateErrorKind) String() string {
	switch k {
	case StateUnknownMessage:
		return "unknown message"
	case StateFinalized:
		return "message finalized"
	case StateNotAssistant:
		return "not an assistant message"
	case StateConversationConflict:
		return "conversation id conflict"
	default:
		return "unknown"
	}
}

// StateError reports a mutation that State refused or only partly applied.
// It is never fatal to the session.
type StateError struct {
	Op        string
	MessageID string
	Kind      StateErrorKind
	Detail    string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	msg := fmt.Sprintf("session %s: %s", e.Op, e.Kind)
	if e.MessageID != "" {
		msg += " (" + e.MessageID + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsStateError reports whether err is or wraps a *StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
