// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation snapshot to a file.
//
// Two formats are supported: Markdown for reading, and JSON holding the full
// model.Conversation. The format is chosen from the file extension.
//
//	path, err := export.ToFile(sess.State().Snapshot(), "notes.md", nil)
package export
