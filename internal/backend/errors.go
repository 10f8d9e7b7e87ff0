// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents a transport-level failure talking to the backend.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel ClientErrors by type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeInvalidRequest
	ErrTypeConnection
	ErrTypeUnauthorized
	ErrTypeConflict
	ErrTypeStatus
	ErrTypeStream
	ErrTypeInvalidResponse
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeConflict:
		return "conflict"
	case ErrTypeStatus:
		return "status"
	case ErrTypeStream:
		return "stream"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks. They match any ClientError of the same type.
var (
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized}
	ErrConflict     = &ClientError{Type: ErrTypeConflict}
	ErrConnection   = &ClientError{Type: ErrTypeConnection}
)

// IsUnauthorized reports whether err is a 401/403 from the backend.
func IsUnauthorized(err error) bool {
	return hasType(err, ErrTypeUnauthorized)
}

// IsConflict reports whether err is a 409 from the backend.
func IsConflict(err error) bool {
	return hasType(err, ErrTypeConflict)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// =============================================================================
// ERROR RESPONSES
// =============================================================================

// errorResponse is the API's error body. Detail is a string for HTTPException
// and a list of field errors for request validation failures.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type validationDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// detailMessage extracts a readable message from an error body, or "".
func detailMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s
	}

	var details []validationDetail
	if err := json.Unmarshal(resp.Detail, &details); err == nil {
		msgs := make([]string, 0, len(details))
		for _, d := range details {
			if len(d.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", d.Loc[len(d.Loc)-1], d.Msg))
			} else {
				msgs = append(msgs, d.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// handleErrorResponse converts a non-2xx response into a *ClientError.
func handleErrorResponse(statusCode int, body []byte) error {
	msg := detailMessage(body)
	if msg == "" {
		msg = http.StatusText(statusCode)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", statusCode)
		}
	}

	errType := ErrTypeStatus
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = ErrTypeUnauthorized
	case http.StatusConflict:
		errType = ErrTypeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		errType = ErrTypeInvalidRequest
	}

	return &ClientError{Type: errType, Message: msg, StatusCode: statusCode}
}
