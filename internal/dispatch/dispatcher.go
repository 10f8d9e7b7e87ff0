// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/model"
	"github.com/jeranaias/skinchat/internal/session"
)

// StopReason says why Run returned.
type StopReason int

const (
	// StopEndOfStream means the frame channel closed. The caller decides
	// whether that was a clean end or a transport failure.
	StopEndOfStream StopReason = iota
	// StopCancelled means ctx was cancelled. The message is not finalized.
	StopCancelled
	// StopApplicationError means the backend sent an error frame. The
	// message has already been finalized with the error suffix.
	StopApplicationError
)

// String returns the reason name.
func (r StopReason) String() string {
	switch r {
	case StopEndOfStream:
		return "end_of_stream"
	case StopCancelled:
		return "cancelled"
	case StopApplicationError:
		return "application_error"
	default:
		return "unknown"
	}
}

// Result summarizes a Run.
type Result struct {
	Reason StopReason
	// Err is the *ApplicationError when Reason is StopApplicationError.
	Err    error
	Frames int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDiagnostics sets a hook that receives every *ProtocolWarning.
func WithDiagnostics(fn func(error)) Option {
	return func(d *Dispatcher) {
		d.diagnostics = fn
	}
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher applies decoded frames to one session's state.
type Dispatcher struct {
	state       *session.State
	logger      zerolog.Logger
	diagnostics func(error)
}

// New creates a Dispatcher writing into state.
func New(state *session.State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  state,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "dispatch").Logger()
	return d
}

// Run consumes frames for messageID until the channel closes, ctx is
// cancelled, or an error frame arrives. Frames received after cancellation
// are dropped unapplied. stats may be nil.
func (d *Dispatcher) Run(ctx context.Context, frames <-chan backend.Frame, messageID string, stats *model.Statistics) Result {
	var res Result
	for {
		if ctx.Err() != nil {
			res.Reason = StopCancelled
			return res
		}

		var (
			frame backend.Frame
			ok    bool
		)
		select {
		case <-ctx.Done():
			res.Reason = StopCancelled
			return res
		case frame, ok = <-frames:
		}
		if !ok {
			res.Reason = StopEndOfStream
			return res
		}
		// A frame and cancellation can be ready together; cancellation wins.
		if ctx.Err() != nil {
			res.Reason = StopCancelled
			return res
		}

		res.Frames++
		if err := d.apply(frame, messageID, stats); err != nil {
			res.Reason = StopApplicationError
			res.Err = err
			return res
		}
	}
}

// apply applies one frame's events in order. It returns an *ApplicationError
// if the frame was terminal.
func (d *Dispatcher) apply(frame backend.Frame, messageID string, stats *model.Statistics) error {
	for _, ev := range Decode(frame) {
		switch e := ev.(type) {
		case ApplicationFailure:
			appErr := &ApplicationError{Message: e.Message}
			d.logger.Warn().Str("message_id", messageID).Str("error", e.Message).Msg("backend reported error")
			// StateError is already reported by the state itself.
			_ = d.state.FinalizeWithError(messageID, e.Message)
			return appErr

		case ConversationAssigned:
			_ = d.state.SetConversationID(e.ID)

		case ContentDelta:
			if err := d.state.ApplyDelta(messageID, e.Text); err == nil && stats != nil {
				stats.RecordDelta()
			}

		case SourcesUpdate:
			_ = d.state.ApplySources(messageID, e.Sources)

		case MalformedFrame:
			d.logger.Warn().Err(e.Warning).Str("message_id", messageID).Msg("skipping malformed frame")
			if d.diagnostics != nil {
				d.diagnostics(e.Warning)
			}
		}
	}
	return nil
}
