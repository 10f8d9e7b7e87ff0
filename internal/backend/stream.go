// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"
)

// frameBuffer is the capacity of a Stream's frame channel.
const frameBuffer = 64

// ChatRequest is the body of a chat POST. A nil ConversationID is sent as
// null and asks the backend to start a new conversation.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

// NewChatRequest builds a request; an empty conversationID is sent as null.
func NewChatRequest(message, conversationID string) ChatRequest {
	req := ChatRequest{Message: message}
	if conversationID != "" {
		req.ConversationID = &conversationID
	}
	return req
}

// =============================================================================
// OPEN
// =============================================================================

// Open posts req to the chat endpoint and returns once the response headers
// have arrived. Frames are read in the background until the body ends, a
// read fails, ctx is cancelled, or the Stream is closed.
//
// Non-2xx responses, bodies that are not text/event-stream, and connection
// failures are returned as *ClientError.
func (c *Client) Open(ctx context.Context, req ChatRequest, token string) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.config.ChatPath), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(httpReq, token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to reach backend", Cause: err}
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Bool("resume", req.ConversationID != nil).
		Msg("chat stream opened")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := readLimited(resp.Body)
		resp.Body.Close()
		return nil, handleErrorResponse(resp.StatusCode, errBody)
	}

	if ct := resp.Header.Get("Content-Type"); !isEventStream(ct) {
		resp.Body.Close()
		return nil, &ClientError{
			Type:       ErrTypeInvalidResponse,
			Message:    fmt.Sprintf("expected text/event-stream response, got %q", ct),
			StatusCode: resp.StatusCode,
		}
	}

	return NewStream(ctx, resp.Body, c.config.MaxFrameSize), nil
}

// isEventStream reports whether a Content-Type header names an SSE body.
func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is one open chat response.
type Stream struct {
	frames chan Frame
	body   io.ReadCloser

	closeOnce sync.Once
	closed    chan struct{}

	mu  sync.Mutex
	err error
}

// NewStream starts reading SSE frames from body. The stream owns body and
// closes it when reading stops.
func NewStream(ctx context.Context, body io.ReadCloser, maxFrameSize int) *Stream {
	s := &Stream{
		frames: make(chan Frame, frameBuffer),
		body:   body,
		closed: make(chan struct{}),
	}
	go s.read(ctx, NewSSEReaderSize(body, maxFrameSize))

	// Unblock a pending read as soon as ctx is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()
	return s
}

// Frames returns the channel of frames in arrival order. It is closed when
// the stream ends for any reason.
func (s *Stream) Frames() <-chan Frame {
	return s.frames
}

// Err returns the transport failure that ended the stream, or nil if it
// ended normally or was cancelled. Call it after Frames is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops reading and releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.body.Close()
	})
	return nil
}

func (s *Stream) read(ctx context.Context, reader *SSEReader) {
	defer close(s.frames)
	defer s.Close()

	for {
		frame, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || s.isClosed() {
				return
			}
			s.setErr(&ClientError{Type: ErrTypeStream, Message: "stream interrupted", Cause: err})
			return
		}

		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		}
	}
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
