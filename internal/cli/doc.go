// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the skinchat command line.
//
// # Commands
//
//	skinchat                   Start an interactive session (same as chat)
//	skinchat chat [-c ID]      Interactive session with line editing and history
//	skinchat ask "question"    Ask one question, stream the answer to stdout
//	skinchat login             Sign in and store a token in ~/.skinchat/token
//	skinchat register          Create an account and sign in
//	skinchat logout            Remove the stored token
//	skinchat status            Check the backend and sign-in state
//	skinchat config show|path|init
//
// Inside chat, /help lists the slash commands (/new, /resume, /save ...).
//
// Answers and their sources go to stdout. Logs and status lines go to stderr.
package cli
