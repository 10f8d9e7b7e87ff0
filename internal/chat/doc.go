// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs conversation turns.
//
// A turn appends the user message and an assistant placeholder, opens a
// stream to the backend, and dispatches its frames into the placeholder
// until the stream ends, the backend reports an error, or the turn is
// cancelled:
//
//	Idle -> Sending -> Streaming -> Completed
//	            |          |-----> Failed
//	            |          '-----> Cancelled
//	            '-> Failed | Cancelled
//
// Every terminal state finalizes the assistant message exactly once. Only
// one turn is active per Session; Send cancels the active turn and waits for
// its message to be finalized before appending anything new.
package chat
