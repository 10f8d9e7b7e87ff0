// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	nop := zerolog.Nop()
	return NewClientWithConfig(&ClientConfig{BaseURL: server.URL, Logger: &nop})
}

// eventStream marks a test response as SSE before any body is written.
func eventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}

func collect(t *testing.T, s *Stream) []Frame {
	t.Helper()
	var frames []Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-s.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen_SendsContract(t *testing.T) {
	var got struct {
		Method, Auth, ContentType, Accept, Path string
		Body                                   map[string]any
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.Path = r.URL.Path
		got.Auth = r.Header.Get("Authorization")
		got.ContentType = r.Header.Get("Content-Type")
		got.Accept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&got.Body)
		w.Header().Set("Content-Type", "text/event-stream")
	})

	s, err := client.Open(context.Background(), NewChatRequest("What's good for dry skin?", ""), "tok-123")
	require.NoError(t, err)
	collect(t, s)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/chat", got.Path)
	assert.Equal(t, "Bearer tok-123", got.Auth)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "text/event-stream", got.Accept)
	assert.Equal(t, "What's good for dry skin?", got.Body["message"])
	v, present := got.Body["conversation_id"]
	assert.True(t, present, "conversation_id must be sent as null")
	assert.Nil(t, v)
}

func TestOpen_ResumeSendsConversationID(t *testing.T) {
	var body ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		eventStream(w)
	})

	s, err := client.Open(context.Background(), NewChatRequest("again", "abc-123"), "tok")
	require.NoError(t, err)
	collect(t, s)

	require.NotNil(t, body.ConversationID)
	assert.Equal(t, "abc-123", *body.ConversationID)
}

func TestOpen_DeliversFramesInOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		eventStream(w)
		flusher := w.(http.Flusher)
		for i := 0; i < 20; i++ {
			fmt.Fprintf(w, "data: {\"content\":\"%d \"}\n\n", i)
			flusher.Flush()
		}
	})

	s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)
	frames := collect(t, s)

	require.Len(t, frames, 20)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf(`{"content":"%d "}`, i), string(f.Data))
	}
	assert.NoError(t, s.Err())
}

func TestOpen_UnauthorizedUsesDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	})

	_, err := client.Open(context.Background(), NewChatRequest("hi", ""), "expired")

	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Could not validate credentials", ce.Message)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
}

func TestOpen_ServerErrorWithoutBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrTypeStatus, ce.Type)
	assert.Equal(t, "Bad Gateway", ce.Message)
}

func TestOpen_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url})
	_, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestOpen_CancelStopsFrames(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		eventStream(w)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"content\":\"first\"}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := client.Open(ctx, NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)

	first := <-s.Frames()
	assert.Equal(t, `{"content":"first"}`, string(first.Data))

	cancel()
	cancel() // idempotent
	rest := collect(t, s)

	assert.Empty(t, rest)
	assert.NoError(t, s.Err(), "cancellation is not a transport failure")
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		eventStream(w)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	collect(t, s)
	assert.NoError(t, s.Err())
}

func TestOpen_TruncatedBodyIsStreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		eventStream(w)
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("data: {\"content\":\"Partial \"}\n\n"))
	})

	s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)
	frames := collect(t, s)

	require.Len(t, frames, 1)
	var ce *ClientError
	require.ErrorAs(t, s.Err(), &ce)
	assert.Equal(t, ErrTypeStream, ce.Type)
}

func TestOpen_RejectsNonEventStream(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"json maintenance page", "application/json"},
		{"proxy html page", "text/html; charset=utf-8"},
		{"missing header", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header()["Content-Type"] = []string{tt.contentType}
				w.Write([]byte(`{"message":"maintenance"}`))
			})

			s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")

			require.Error(t, err)
			assert.Nil(t, s)
			var ce *ClientError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ErrTypeInvalidResponse, ce.Type)
			assert.Equal(t, http.StatusOK, ce.StatusCode)
		})
	}
}

func TestOpen_AcceptsEventStreamWithParams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprint(w, "data: {\"content\":\"ok\"}\n\n")
	})

	s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)
	require.Len(t, collect(t, s), 1)
}

func TestOpen_OversizedFrameIsStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventStream(w)
		fmt.Fprint(w, "data: "+strings.Repeat("x", 8192))
	}))
	t.Cleanup(server.Close)
	nop := zerolog.Nop()
	client := NewClientWithConfig(&ClientConfig{BaseURL: server.URL, MaxFrameSize: 1024, Logger: &nop})

	s, err := client.Open(context.Background(), NewChatRequest("hi", ""), "tok")
	require.NoError(t, err)
	assert.Empty(t, collect(t, s))

	var ce *ClientError
	require.ErrorAs(t, s.Err(), &ce)
	assert.Equal(t, ErrTypeStream, ce.Type)
	assert.ErrorIs(t, s.Err(), ErrFrameTooLarge)
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func TestLogin_SendsFormAndParsesToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "ana" || r.PostForm.Get("password") != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		w.Write([]byte(`{"access_token":"jwt-abc","token_type":"bearer","expires_in":1800}`))
	})

	tok, err := client.Login(context.Background(), Credentials{Username: "ana", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", tok.AccessToken)
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, issued.Add(30*time.Minute), tok.ExpiresAt(issued))

	_, err = client.Login(context.Background(), Credentials{Username: "ana", Password: "wrong"})
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Incorrect username or password")
}

func TestRegister_ConflictAndValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		switch {
		case creds.Username == "taken":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail":"Username already exists"}`))
		case len(creds.Password) < 6:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":[{"loc":["body","password"],"msg":"String should have at least 6 characters"}]}`))
		default:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"u-1","username":"` + creds.Username + `"}`))
		}
	})
	ctx := context.Background()

	user, err := client.Register(ctx, Credentials{Username: "ana", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	_, err = client.Register(ctx, Credentials{Username: "taken", Password: "secret1"})
	assert.True(t, IsConflict(err))

	_, err = client.Register(ctx, Credentials{Username: "bob", Password: "123"})
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrTypeInvalidRequest, ce.Type)
	assert.Equal(t, "password: String should have at least 6 characters", ce.Message)
}

func TestLogoutAndHealth(t *testing.T) {
	var logoutAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/logout":
			logoutAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"message":"Successfully logged out"}`))
		case "/health":
			w.Write([]byte(`{"status":"healthy"}`))
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, client.Logout(context.Background(), "jwt-abc"))
	assert.Equal(t, "Bearer jwt-abc", logoutAuth)
	require.NoError(t, client.Health(context.Background()))
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test/"})

	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Equal(t, DefaultChatPath, c.config.ChatPath)
	assert.Equal(t, DefaultMaxFrameSize, c.config.MaxFrameSize)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
	assert.Zero(t, c.streamClient.Timeout)
}
