// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"fmt"
)

// ApplicationError is a failure the backend reported inside the stream.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return "backend error: " + e.Message
}

// IsApplicationError reports whether err is or wraps an *ApplicationError.
func IsApplicationError(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

// ProtocolWarning reports a frame that could not be fully understood.
// The stream continues after a warning.
type ProtocolWarning struct {
	Data  string
	Cause error
}

func (e *ProtocolWarning) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed frame %q: %v", e.Data, e.Cause)
	}
	return fmt.Sprintf("malformed frame %q", e.Data)
}

func (e *ProtocolWarning) Unwrap() error {
	return e.Cause
}
