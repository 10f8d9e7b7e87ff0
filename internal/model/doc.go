// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: a single user or assistant turn with content, sources, and finalization state
//   - Source: a citation attached to an assistant message (product or web)
//   - Conversation: an immutable snapshot of a session's ordered messages
//   - Statistics: timing collected while an assistant message streams
//
// Messages are plain values. Mutation during streaming is owned by
// session.State, which hands out copies to observers.
package model
