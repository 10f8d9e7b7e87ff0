// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch turns SSE frames from the chat endpoint into typed
// events and applies them to the session state.
//
// One frame may carry several keys. Decode orders the resulting events by
// precedence: an error is terminal and suppresses everything else in the
// frame, then conversation assignment, then content, then sources.
// Frames are applied strictly in arrival order and never batched.
package dispatch
