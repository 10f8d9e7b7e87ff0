// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/skinchat/internal/model"
)

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the lifecycle position of a turn.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnSending
	TurnStreaming
	TurnCompleted
	TurnCancelled
	TurnFailed
)

// String returns the state name.
func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnSending:
		return "sending"
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnCancelled:
		return "cancelled"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can happen.
func (s TurnState) IsTerminal() bool {
	return s == TurnCompleted || s == TurnCancelled || s == TurnFailed
}

// outcome maps a terminal state to the message outcome.
func (s TurnState) outcome() model.Outcome {
	switch s {
	case TurnCompleted:
		return model.OutcomeCompleted
	case TurnCancelled:
		return model.OutcomeCancelled
	case TurnFailed:
		return model.OutcomeFailed
	default:
		return model.OutcomeNone
	}
}

// =============================================================================
// TURN
// =============================================================================

// Turn is one user message and the assistant response streaming into its
// placeholder.
type Turn struct {
	ID            string
	UserMessageID string
	AssistantID   string

	mu    sync.Mutex
	state TurnState
	err   error
	stats model.Statistics

	done chan struct{}
}

func newTurn(userID, assistantID string) *Turn {
	return &Turn{
		ID:            "turn_" + uuid.NewString(),
		UserMessageID: userID,
		AssistantID:   assistantID,
		state:         TurnIdle,
		done:          make(chan struct{}),
	}
}

// Done is closed once the turn reaches a terminal state and its message is finalized.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn is done or ctx ends, and returns the turn error.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure of a Failed turn, nil otherwise.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Stats returns the turn's timing statistics. They are zero until the turn is done.
func (t *Turn) Stats() model.Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// transition moves to a non-terminal state.
func (t *Turn) transition(next TurnState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return false
	}
	t.state = next
	return true
}

// finish moves to a terminal state and records the outcome.
func (t *Turn) finish(next TurnState, err error, stats model.Statistics) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return false
	}
	t.state = next
	t.stats = stats
	if next == TurnFailed {
		t.err = err
	}
	return true
}
