// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the authoritative, mutable history of one chat session.
//
// State keeps the ordered messages and the backend-assigned conversation
// identifier. Every mutation is addressed by message ID, so a stale writer
// can never touch the wrong message. Rejected mutations return a
// *StateError, are logged, and are reported to the diagnostics hook; they
// never panic.
//
// # Key Types
//
//   - State: mutex-guarded message list, conversation ID, and observers
//   - Observer: callback receiving a copy of each changed message
//   - StateError: a rejected mutation (unknown ID, finalized message, ...)
//
// # Usage
//
//	st := session.New(session.WithLogger(logger))
//	unsubscribe := st.Subscribe(func(m model.Message) { render(m) })
//	defer unsubscribe()
//
//	userID, err := st.AppendUserMessage("What's good for dry skin?")
//	replyID := st.AppendAssistantPlaceholder()
//	_ = st.ApplyDelta(replyID, "Try a ceramide moisturizer.")
//	_ = st.Finalize(replyID, model.OutcomeCompleted)
package session
