// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth stores the bearer token used for chat requests.
//
// FileStore persists the login under ~/.skinchat/token and can watch it for
// changes made by other processes. MemoryStore serves a token supplied
// through the environment.
package auth
