// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/model"
	"github.com/jeranaias/skinchat/internal/session"
)

func frame(data string) backend.Frame {
	return backend.Frame{Data: []byte(data)}
}

func feed(frames ...string) <-chan backend.Frame {
	ch := make(chan backend.Frame, len(frames))
	for _, f := range frames {
		ch <- frame(f)
	}
	close(ch)
	return ch
}

type harness struct {
	state    *session.State
	disp     *Dispatcher
	id       string
	warnings []error
	stateErr []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.state = session.New(
		session.WithLogger(zerolog.Nop()),
		session.WithDiagnostics(func(err error) { h.stateErr = append(h.stateErr, err) }),
	)
	h.disp = New(h.state,
		WithLogger(zerolog.Nop()),
		WithDiagnostics(func(err error) { h.warnings = append(h.warnings, err) }),
	)
	h.id = h.state.AppendAssistantPlaceholder()
	return h
}

func (h *harness) message(t *testing.T) model.Message {
	t.Helper()
	msg, ok := h.state.Message(h.id)
	require.True(t, ok)
	return msg
}

// =============================================================================
// DECODE TESTS
// =============================================================================

func TestDecode_Precedence(t *testing.T) {
	events := Decode(frame(`{"sources":[{"type":"web","title":"AAD"}],"content":"Hi","conversation_id":"c1"}`))

	require.Len(t, events, 3)
	assert.Equal(t, ConversationAssigned{ID: "c1"}, events[0])
	assert.Equal(t, ContentDelta{Text: "Hi"}, events[1])
	assert.IsType(t, SourcesUpdate{}, events[2])
}

func TestDecode_ErrorSuppressesOtherKeys(t *testing.T) {
	events := Decode(frame(`{"error":"model overloaded","content":"ignored","conversation_id":"c1"}`))

	require.Len(t, events, 1)
	assert.Equal(t, ApplicationFailure{Message: "model overloaded"}, events[0])
}

func TestDecode_FalsyValuesAreAbsent(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty error", `{"error":"","content":"x"}`},
		{"null error", `{"error":null,"content":"x"}`},
		{"false error", `{"error":false,"content":"x"}`},
		{"zero error", `{"error":0,"content":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []Event{ContentDelta{Text: "x"}}, Decode(frame(tt.data)))
		})
	}

	assert.Empty(t, Decode(frame(`{"content":"","conversation_id":""}`)))
	assert.Equal(t, []Event{ConversationAssigned{ID: "c1"}}, Decode(frame(`{"conversation_id":"c1","done":true}`)))
}

func TestDecode_NonStringError(t *testing.T) {
	events := Decode(frame(`{"error":{"code":503}}`))

	require.Len(t, events, 1)
	assert.Equal(t, ApplicationFailure{Message: `{"code":503}`}, events[0])
}

func TestDecode_EmptySourcesIsAnUpdate(t *testing.T) {
	events := Decode(frame(`{"sources":[]}`))

	require.Len(t, events, 1)
	update := events[0].(SourcesUpdate)
	assert.NotNil(t, update.Sources)
	assert.Empty(t, update.Sources)
}

func TestDecode_DropsInvalidSources(t *testing.T) {
	events := Decode(frame(`{"sources":[{"type":"product","title":"CeraVe PM"},{"type":"video","title":"x"},{"type":"web","title":""}]}`))

	require.Len(t, events, 2)
	update := events[0].(SourcesUpdate)
	assert.Equal(t, []model.Source{{Kind: model.SourceProduct, Title: "CeraVe PM"}}, update.Sources)
	assert.IsType(t, MalformedFrame{}, events[1])
}

func TestDecode_Malformed(t *testing.T) {
	for _, data := range []string{`not json`, `[DONE]`, `{"content":42}`, `[1,2]`, `null`, ` null `, `"hi"`, `42`, ``} {
		events := Decode(frame(data))
		require.Len(t, events, 1, data)
		mf, ok := events[0].(MalformedFrame)
		require.True(t, ok, data)
		assert.Equal(t, data, mf.Warning.Data)
	}
}

func TestDecode_NullPayloadIsWarning(t *testing.T) {
	events := Decode(frame(`null`))

	require.Len(t, events, 1)
	mf, ok := events[0].(MalformedFrame)
	require.True(t, ok)
	assert.Contains(t, mf.Warning.Error(), "not a JSON object")
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestRun_HappyPath(t *testing.T) {
	h := newHarness(t)
	stats := model.NewStatistics()

	res := h.disp.Run(context.Background(), feed(
		`{"conversation_id":"abc-123"}`,
		`{"content":"Try a "}`,
		`{"content":"ceramide moisturizer."}`,
		`{"sources":[{"type":"product","title":"CeraVe PM"}]}`,
		`{"conversation_id":"abc-123","done":true}`,
	), h.id, stats)

	assert.Equal(t, StopEndOfStream, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, 2, stats.DeltaCount)

	msg := h.message(t)
	assert.Equal(t, "Try a ceramide moisturizer.", msg.Content)
	assert.Equal(t, []model.Source{{Kind: model.SourceProduct, Title: "CeraVe PM"}}, msg.Sources)
	assert.False(t, msg.Finalized, "end of stream is finalized by the turn, not the dispatcher")
	assert.Equal(t, "abc-123", h.state.ConversationID())
	assert.Empty(t, h.stateErr)
}

func TestRun_ApplicationErrorIsTerminal(t *testing.T) {
	h := newHarness(t)

	res := h.disp.Run(context.Background(), feed(
		`{"content":"Partial "}`,
		`{"error":"model overloaded"}`,
		`{"content":"never applied"}`,
	), h.id, nil)

	assert.Equal(t, StopApplicationError, res.Reason)
	var appErr *ApplicationError
	require.True(t, errors.As(res.Err, &appErr))
	assert.Equal(t, "model overloaded", appErr.Message)
	assert.True(t, IsApplicationError(res.Err))

	msg := h.message(t)
	assert.Equal(t, "Partial \n\n*[Error: model overloaded]*", msg.Content)
	assert.Equal(t, model.OutcomeFailed, msg.Outcome)
}

func TestRun_MalformedFrameContinues(t *testing.T) {
	h := newHarness(t)

	res := h.disp.Run(context.Background(), feed(
		`{"content":"a"}`,
		`{oops`,
		`{"content":"b"}`,
	), h.id, nil)

	assert.Equal(t, StopEndOfStream, res.Reason)
	assert.Equal(t, "ab", h.message(t).Content)
	require.Len(t, h.warnings, 1)
	var pw *ProtocolWarning
	assert.True(t, errors.As(h.warnings[0], &pw))
}

func TestRun_SourcesReplacedNotMerged(t *testing.T) {
	h := newHarness(t)

	h.disp.Run(context.Background(), feed(
		`{"sources":[{"type":"product","title":"A"},{"type":"web","title":"B","url":"https://b.test"}]}`,
		`{"sources":[{"type":"product","title":"C"}]}`,
	), h.id, nil)

	assert.Equal(t, []model.Source{{Kind: model.SourceProduct, Title: "C"}}, h.message(t).Sources)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.disp.Run(ctx, feed(`{"content":"dropped"}`), h.id, nil)

	assert.Equal(t, StopCancelled, res.Reason)
	assert.Equal(t, 0, res.Frames)
	assert.Equal(t, "", h.message(t).Content)
}

func TestRun_CancelMidStreamDropsLaterFrames(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan backend.Frame)
	done := make(chan Result)
	applied := make(chan struct{}, 1)
	h.state.Subscribe(func(m model.Message) {
		if m.Content != "" {
			applied <- struct{}{}
		}
	})

	go func() { done <- h.disp.Run(ctx, frames, h.id, nil) }()

	frames <- frame(`{"content":"kept"}`)
	<-applied
	cancel()
	res := <-done

	assert.Equal(t, StopCancelled, res.Reason)
	assert.Equal(t, "kept", h.message(t).Content)
}

func TestRun_AfterFinalizeIsStateError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.state.Finalize(h.id, model.OutcomeCancelled))

	h.disp.Run(context.Background(), feed(`{"content":"late"}`, `{"sources":[]}`), h.id, nil)

	assert.Len(t, h.stateErr, 2)
	for _, err := range h.stateErr {
		assert.True(t, session.IsStateError(err))
	}
	assert.Equal(t, "", h.message(t).Content)
}
