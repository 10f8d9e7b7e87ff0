// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the skinchat packages.
//
// String Utilities:
//   - TruncateWidth: display-width truncation with ellipsis (CJK and emoji aware)
//   - SingleLine: collapses whitespace runs for one-line previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync, used for the
//     config file and the stored bearer token
package util
