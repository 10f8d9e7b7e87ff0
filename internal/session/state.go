// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/skinchat/internal/model"
)

// ErrorSuffixFormat is appended to an assistant message that ends in failure.
const ErrorSuffixFormat = "\n\n*[Error: %s]*"

// Observer receives a copy of a message after each accepted mutation.
// Observers run outside the state lock and may read State, but must not
// mutate it.
type Observer func(msg model.Message)

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger used for rejected mutations.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

// WithDiagnostics sets a hook that receives every *StateError.
func WithDiagnostics(fn func(error)) Option {
	return func(s *State) {
		s.diagnostics = fn
	}
}

// =============================================================================
// STATE
// =============================================================================

// State is the authoritative message history of one session.
type State struct {
	mu sync.Mutex

	messages       []model.Message
	index          map[string]int
	conversationID string

	observers    map[int]Observer
	nextObserver int

	// notifyMu keeps observer callbacks in mutation order. Mutations take
	// it before mu; observers run holding only notifyMu.
	notifyMu sync.Mutex

	logger      zerolog.Logger
	diagnostics func(error)
}

// New creates an empty State.
func New(opts ...Option) *State {
	s := &State{
		index:     make(map[string]int),
		observers: make(map[int]Observer),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Logger()
	return s
}

// Subscribe registers an observer and returns a function that removes it.
func (s *State) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendUserMessage appends an immutable user message and returns its ID.
func (s *State) AppendUserMessage(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrInvalidInput
	}
	msg := model.NewUserMessage(text)

	s.lockForMutation()
	s.appendLocked(msg)
	s.publishLocked(msg)
	return msg.ID, nil
}

// AppendAssistantPlaceholder appends an empty assistant message and returns its ID.
func (s *State) AppendAssistantPlaceholder() string {
	msg := model.NewAssistantPlaceholder()

	s.lockForMutation()
	s.appendLocked(msg)
	s.publishLocked(msg)
	return msg.ID
}

// ApplyDelta appends fragment to the content of an active assistant message.
func (s *State) ApplyDelta(id, fragment string) error {
	s.lockForMutation()
	i, err := s.mutableLocked("apply_delta", id)
	if err != nil {
		s.unlockMutation()
		return s.reject(err)
	}
	s.messages[i].Content += fragment
	s.publishLocked(s.messages[i])
	return nil
}

// ApplySources replaces the source list of an active assistant message.
// A nil list is stored as empty: once set, sources are never "unset" again.
func (s *State) ApplySources(id string, sources []model.Source) error {
	s.lockForMutation()
	i, err := s.mutableLocked("apply_sources", id)
	if err != nil {
		s.unlockMutation()
		return s.reject(err)
	}
	next := model.CloneSources(sources)
	if next == nil {
		next = []model.Source{}
	}
	s.messages[i].Sources = next
	s.publishLocked(s.messages[i])
	return nil
}

// SetConversationID records the backend-assigned conversation identifier.
// The same value again is a no-op. A different value overwrites the old one
// and is reported as a *StateError.
func (s *State) SetConversationID(id string) error {
	s.mu.Lock()
	prev := s.conversationID
	if prev == id {
		s.mu.Unlock()
		return nil
	}
	s.conversationID = id
	s.mu.Unlock()

	if prev == "" {
		return nil
	}
	return s.reject(&StateError{
		Op:     "set_conversation_id",
		Kind:   StateConversationConflict,
		Detail: fmt.Sprintf("replaced %q with %q", prev, id),
	})
}

// Finalize marks an assistant message immutable with the given outcome.
func (s *State) Finalize(id string, outcome model.Outcome) error {
	if outcome == model.OutcomeNone {
		outcome = model.OutcomeCompleted
	}

	s.lockForMutation()
	i, err := s.mutableLocked("finalize", id)
	if err != nil {
		s.unlockMutation()
		return s.reject(err)
	}
	s.messages[i].Finalized = true
	s.messages[i].Outcome = outcome
	s.publishLocked(s.messages[i])
	return nil
}

// FinalizeWithError appends the error suffix to an assistant message and
// finalizes it as failed. Content already received is kept.
func (s *State) FinalizeWithError(id, diagnostic string) error {
	s.lockForMutation()
	i, err := s.mutableLocked("finalize_with_error", id)
	if err != nil {
		s.unlockMutation()
		return s.reject(err)
	}
	s.messages[i].Content += fmt.Sprintf(ErrorSuffixFormat, diagnostic)
	s.messages[i].Finalized = true
	s.messages[i].Outcome = model.OutcomeFailed
	s.publishLocked(s.messages[i])
	return nil
}

// Reset discards all messages and sets the conversation identifier,
// which may be empty to start a fresh conversation.
func (s *State) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.index = make(map[string]int)
	s.conversationID = conversationID
}

// =============================================================================
// QUERIES
// =============================================================================

// Messages returns a copy of all messages in conversation order.
func (s *State) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a copy of the message with the given ID.
func (s *State) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// ConversationID returns the current conversation identifier, empty if unassigned.
func (s *State) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Len returns the number of messages.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns the current history as a Conversation.
func (s *State) Snapshot() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.NewConversation(s.conversationID, s.messages)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *State) appendLocked(msg model.Message) {
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// mutableLocked returns the index of an assistant message that still accepts
// mutations. Caller holds s.mu.
func (s *State) mutableLocked(op, id string) (int, error) {
	i, ok := s.index[id]
	if !ok {
		return 0, &StateError{Op: op, MessageID: id, Kind: StateUnknownMessage}
	}
	msg := s.messages[i]
	if msg.Role != model.RoleAssistant {
		return 0, &StateError{Op: op, MessageID: id, Kind: StateNotAssistant}
	}
	if msg.Finalized {
		return 0, &StateError{Op: op, MessageID: id, Kind: StateFinalized, Detail: msg.Outcome.String()}
	}
	return i, nil
}

func (s *State) lockForMutation() {
	s.notifyMu.Lock()
	s.mu.Lock()
}

func (s *State) unlockMutation() {
	s.mu.Unlock()
	s.notifyMu.Unlock()
}

// publishLocked copies msg and the observer set, releases s.mu, and notifies
// observers in order. Caller holds both locks from lockForMutation; both are
// released on return.
func (s *State) publishLocked(msg model.Message) {
	snapshot := msg.Clone()
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObserver; i++ {
		if fn, ok := s.observers[i]; ok {
			observers = append(observers, fn)
		}
	}

	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// reject logs err and forwards it to the diagnostics hook.
func (s *State) reject(err error) error {
	s.logger.Warn().Err(err).Msg("rejected session mutation")
	if s.diagnostics != nil {
		s.diagnostics(err)
	}
	return err
}
