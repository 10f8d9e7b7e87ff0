// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL HANDLE MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelManager holds the cancel handle of the single active turn.
// Must be used as a pointer; it contains a mutex.
type cancelManager struct {
	mu         sync.Mutex
	turn       *Turn
	cancelFunc context.CancelFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set registers turn as active. The previous handle, if any, must already
// have been cancelled and awaited.
func (cm *cancelManager) set(turn *Turn, fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.turn = turn
	cm.cancelFunc = fn
}

// cancel signals the active turn without waiting. Safe to call repeatedly
// or with no active turn.
func (cm *cancelManager) cancel() *Turn {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
	return cm.turn
}

// cancelAndWait signals the active turn and blocks until its goroutine has
// finalized the turn's message.
func (cm *cancelManager) cancelAndWait() {
	if turn := cm.cancel(); turn != nil {
		<-turn.Done()
	}
}

// clear removes turn if it is still the active one and releases its context.
func (cm *cancelManager) clear(turn *Turn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.turn != turn {
		return
	}
	if cm.cancelFunc != nil {
		cm.cancelFunc() // release context resources
		cm.cancelFunc = nil
	}
	cm.turn = nil
}

// active returns the running turn, or nil.
func (cm *cancelManager) active() *Turn {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.turn
}
