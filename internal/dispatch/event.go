// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/model"
)

// maxWarningData bounds the frame excerpt kept in a ProtocolWarning.
const maxWarningData = 200

// =============================================================================
// EVENTS
// =============================================================================

// Event is one decoded piece of a frame.
type Event interface {
	isEvent()
}

// ContentDelta is a fragment to append to the assistant message.
type ContentDelta struct {
	Text string
}

// SourcesUpdate replaces the assistant message's sources.
type SourcesUpdate struct {
	Sources []model.Source
}

// ConversationAssigned carries the backend's conversation identifier.
type ConversationAssigned struct {
	ID string
}

// ApplicationFailure is a terminal error reported by the backend.
type ApplicationFailure struct {
	Message string
}

// MalformedFrame is a frame, or part of one, that could not be decoded.
type MalformedFrame struct {
	Warning *ProtocolWarning
}

func (ContentDelta) isEvent()         {}
func (SourcesUpdate) isEvent()        {}
func (ConversationAssigned) isEvent() {}
func (ApplicationFailure) isEvent()   {}
func (MalformedFrame) isEvent()       {}

// =============================================================================
// DECODE
// =============================================================================

// payload mirrors the frame JSON. Unknown keys such as "done" are ignored.
type payload struct {
	Error          any           `json:"error"`
	ConversationID *string       `json:"conversation_id"`
	Content        *string       `json:"content"`
	Sources        *[]wireSource `json:"sources"`
}

type wireSource struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Decode converts a frame into events in precedence order. Empty strings
// and nulls count as absent. An error key yields a single
// ApplicationFailure and nothing else. Payloads that are not JSON objects,
// including null, are malformed.
func Decode(frame backend.Frame) []Event {
	if trimmed := bytes.TrimSpace(frame.Data); len(trimmed) == 0 || trimmed[0] != '{' {
		return []Event{malformed(frame.Data, errors.New("payload is not a JSON object"))}
	}

	var p payload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return []Event{malformed(frame.Data, err)}
	}

	if msg, ok := errorMessage(p.Error); ok {
		return []Event{ApplicationFailure{Message: msg}}
	}

	var events []Event
	if p.ConversationID != nil && *p.ConversationID != "" {
		events = append(events, ConversationAssigned{ID: *p.ConversationID})
	}
	if p.Content != nil && *p.Content != "" {
		events = append(events, ContentDelta{Text: *p.Content})
	}
	if p.Sources != nil {
		sources, rejected := convertSources(*p.Sources)
		events = append(events, SourcesUpdate{Sources: sources})
		if rejected > 0 {
			events = append(events, malformed(frame.Data,
				fmt.Errorf("dropped %d source(s) with unknown type or empty title", rejected)))
		}
	}
	return events
}

// errorMessage reports whether the error value is set and renders it.
func errorMessage(v any) (string, bool) {
	switch e := v.(type) {
	case nil:
		return "", false
	case string:
		return e, e != ""
	case bool:
		if !e {
			return "", false
		}
		return "unknown error", true
	case float64:
		if e == 0 {
			return "", false
		}
		return fmt.Sprintf("error code %v", e), true
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e), true
		}
		return string(b), true
	}
}

func convertSources(in []wireSource) ([]model.Source, int) {
	out := make([]model.Source, 0, len(in))
	rejected := 0
	for _, s := range in {
		kind := model.SourceKind(s.Type)
		if (kind != model.SourceProduct && kind != model.SourceWeb) || s.Title == "" {
			rejected++
			continue
		}
		out = append(out, model.Source{Kind: kind, Title: s.Title, URL: s.URL})
	}
	return out, rejected
}

func malformed(data []byte, cause error) MalformedFrame {
	excerpt := string(data)
	if len(excerpt) > maxWarningData {
		excerpt = excerpt[:maxWarningData] + "..."
	}
	if cause == nil {
		cause = errors.New("undecodable payload")
	}
	return MalformedFrame{Warning: &ProtocolWarning{Data: excerpt, Cause: cause}}
}
