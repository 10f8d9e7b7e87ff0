// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the SkinTech consultant API.
//
// The chat endpoint answers a single POST with a server-sent event stream.
// Open returns as soon as response headers arrive; frames are then pushed
// to a channel by a reader goroutine until the body ends or the context is
// cancelled. The package knows nothing about frame payloads beyond SSE
// framing: decoding JSON keys is the dispatcher's job.
//
// # Key Types
//
//   - Client: HTTP client for chat streaming, login, registration, and health
//   - Stream: one open chat response, exposing Frames() and Err()
//   - Frame: one complete SSE event (event name, data, id)
//   - SSEReader: incremental SSE parser over an io.Reader
//   - ClientError: typed transport failure (connection, status, stream, ...)
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: "http://localhost:8000"})
//	stream, err := client.Open(ctx, backend.ChatRequest{Message: "What's good for dry skin?"}, token)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for frame := range stream.Frames() {
//	    handle(frame)
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
package backend
