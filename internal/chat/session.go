// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/dispatch"
	"github.com/jeranaias/skinchat/internal/model"
	"github.com/jeranaias/skinchat/internal/session"
)

// Transport opens a chat stream. *backend.Client implements it.
type Transport interface {
	Open(ctx context.Context, req backend.ChatRequest, token string) (*backend.Stream, error)
}

// ErrorHandler is called exactly once for each turn that ends Failed,
// after the assistant message has been finalized. It runs on the turn's
// goroutine and must not call Send or Cancel synchronously.
type ErrorHandler func(turn *Turn, err error)

// StateHandler is called on every turn state transition, on the turn's goroutine.
type StateHandler func(turn *Turn, state TurnState)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for the session and its components.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithErrorHandler sets the failed-turn callback.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Session) {
		s.onError = fn
	}
}

// WithStateHandler sets the transition callback.
func WithStateHandler(fn StateHandler) Option {
	return func(s *Session) {
		s.onState = fn
	}
}

// WithDiagnostics receives non-fatal problems: *session.StateError and
// *dispatch.ProtocolWarning.
func WithDiagnostics(fn func(error)) Option {
	return func(s *Session) {
		s.diagnostics = fn
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session runs conversation turns against the backend. At most one turn is
// active; sending a new message cancels the active turn first.
type Session struct {
	transport  Transport
	state      *session.State
	dispatcher *dispatch.Dispatcher
	cancelMgr  *cancelManager

	// sendMu serializes Send so "cancel previous, then append" is atomic.
	sendMu sync.Mutex

	logger      zerolog.Logger
	onError     ErrorHandler
	onState     StateHandler
	diagnostics func(error)
}

// New creates a Session using transport.
func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		cancelMgr: newCancelManager(),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "chat").Logger()

	s.state = session.New(
		session.WithLogger(s.logger),
		session.WithDiagnostics(s.diagnose),
	)
	s.dispatcher = dispatch.New(s.state,
		dispatch.WithLogger(s.logger),
		dispatch.WithDiagnostics(s.diagnose),
	)
	return s
}

// State returns the session's message history.
func (s *Session) State() *session.State {
	return s.state
}

// Send starts a turn for text using the bearer token. It returns once the
// turn is registered; the connection is opened and read on the turn's
// goroutine. ctx bounds the whole turn.
//
// Send fails synchronously with ErrAuthMissing or ErrInvalidInput and then
// creates no messages. Transport and backend failures are not returned
// here: they finalize the message and go to the ErrorHandler.
func (s *Session) Send(ctx context.Context, text, token string) (*Turn, error) {
	if token == "" {
		return nil, ErrAuthMissing
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	// The previous turn's message is finalized before the new turn's
	// messages exist.
	s.cancelMgr.cancelAndWait()

	userID, err := s.state.AppendUserMessage(text)
	if err != nil {
		return nil, err
	}
	assistantID := s.state.AppendAssistantPlaceholder()

	turn := newTurn(userID, assistantID)
	turn.transition(TurnSending)
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancelMgr.set(turn, cancel)

	req := backend.NewChatRequest(text, s.state.ConversationID())
	go s.run(turnCtx, turn, req, token)

	return turn, nil
}

// Cancel stops the active turn, if any, and waits until its message is
// finalized. Partial content is kept. Safe to call repeatedly.
func (s *Session) Cancel() {
	s.cancelMgr.cancelAndWait()
}

// Active returns the running turn, or nil when idle.
func (s *Session) Active() *Turn {
	return s.cancelMgr.active()
}

// NewConversation cancels any active turn and clears the history. The next
// Send asks the backend for a new conversation.
func (s *Session) NewConversation() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.cancelMgr.cancelAndWait()
	s.state.Reset("")
}

// Resume cancels any active turn, clears local history, and continues the
// given backend conversation on the next Send.
func (s *Session) Resume(conversationID string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.cancelMgr.cancelAndWait()
	s.state.Reset(conversationID)
}

// Title is derived from the first user message.
func (s *Session) Title() string {
	return model.TitleFor(s.state.Messages())
}

// Close cancels the active turn and waits for it.
func (s *Session) Close() {
	s.Cancel()
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

func (s *Session) run(ctx context.Context, turn *Turn, req backend.ChatRequest, token string) {
	defer close(turn.done)
	defer s.cancelMgr.clear(turn)

	logger := s.logger.With().Str("turn", turn.ID).Str("message_id", turn.AssistantID).Logger()
	stats := model.NewStatistics()

	// Send already moved the turn to Sending; handlers hear it here.
	if s.onState != nil {
		s.onState(turn, TurnSending)
	}
	stream, err := s.transport.Open(ctx, req, token)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(turn, TurnCancelled, nil, stats)
			return
		}
		logger.Warn().Err(err).Msg("failed to open chat stream")
		s.finish(turn, TurnFailed, err, stats)
		return
	}
	defer stream.Close()

	s.setState(turn, TurnStreaming)
	res := s.dispatcher.Run(ctx, stream.Frames(), turn.AssistantID, stats)
	stream.Close()

	logger.Debug().
		Str("reason", res.Reason.String()).
		Int("frames", res.Frames).
		Int("deltas", stats.DeltaCount).
		Msg("chat stream ended")

	switch res.Reason {
	case dispatch.StopApplicationError:
		s.finish(turn, TurnFailed, res.Err, stats)
	case dispatch.StopCancelled:
		s.finish(turn, TurnCancelled, nil, stats)
	default:
		if ctx.Err() != nil {
			s.finish(turn, TurnCancelled, nil, stats)
		} else if err := stream.Err(); err != nil {
			logger.Warn().Err(err).Msg("chat stream interrupted")
			s.finish(turn, TurnFailed, err, stats)
		} else {
			s.finish(turn, TurnCompleted, nil, stats)
		}
	}
}

// finish finalizes the assistant message, records the terminal state, and
// reports failures once.
func (s *Session) finish(turn *Turn, state TurnState, err error, stats *model.Statistics) {
	switch state {
	case TurnFailed:
		// Application errors were finalized with their suffix by the dispatcher.
		if !dispatch.IsApplicationError(err) {
			_ = s.state.FinalizeWithError(turn.AssistantID, diagnostic(err))
		}
	default:
		_ = s.state.Finalize(turn.AssistantID, state.outcome())
	}

	stats.Finalize()
	if !turn.finish(state, err, *stats) {
		return
	}
	if s.onState != nil {
		s.onState(turn, state)
	}
	if state == TurnFailed && s.onError != nil {
		s.onError(turn, err)
	}
}

func (s *Session) setState(turn *Turn, state TurnState) {
	if turn.transition(state) && s.onState != nil {
		s.onState(turn, state)
	}
}

func (s *Session) diagnose(err error) {
	if s.diagnostics != nil {
		s.diagnostics(err)
	}
}
