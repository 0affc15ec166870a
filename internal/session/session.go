// ABOUTME: Per-participant conversation session state with tagged variants
// ABOUTME: Memory cache is the source of truth; the durable store is a best-effort mirror

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/store"
)

// State tags the current workflow step for one participant.
// Absence of a session means idle.
type State string

const (
	StateIdle                  State = "idle"
	StateRegisteringName       State = "registering_name"
	StateRegisteringPhone      State = "registering_phone"
	StateAwaitingContent       State = "awaiting_content"
	StateAwaitingConfirm       State = "awaiting_confirm"
	StateAwaitingFeedbackText  State = "awaiting_feedback_text"
	StateAwaitingBroadcastText State = "awaiting_broadcast_text"
	StateAwaitingBroadcastOK   State = "awaiting_broadcast_confirm"
	StateAwaitingGroupPost     State = "awaiting_group_post"
	StateAwaitingGroupPostOK   State = "awaiting_group_post_confirm"
	StateAwaitingResultName    State = "awaiting_result_name"
	StateAwaitingResultGrammar State = "awaiting_result_grammar"
	StateAwaitingResultWords   State = "awaiting_result_wordlist"
	StateAwaitingResultConfirm State = "awaiting_result_confirm"
	StateInDialog              State = "in_dialog"
)

// Payload carries exactly the data the current state needs.
// Unused fields stay zero and are omitted from the durable mirror.
type Payload struct {
	ContentKind store.ContentKind `json:"content_kind,omitempty"`
	StagedChat  string            `json:"staged_chat,omitempty"`
	StagedMsg   string            `json:"staged_msg,omitempty"`
	Name        string            `json:"name,omitempty"`
	Grammar     *float64          `json:"grammar,omitempty"`
	Wordlist    *float64          `json:"wordlist,omitempty"`
	PeerThread  string            `json:"peer_thread,omitempty"`
}

// Session is the mutable conversation state for one participant.
// Owned exclusively by the conversation engine.
type Session struct {
	OwnerID string
	State   State
	Data    Payload
}

// StagedRef returns the staged source message held in the payload.
func (s *Session) StagedRef() messenger.MessageRef {
	return messenger.MessageRef{ChatID: s.Data.StagedChat, MessageID: s.Data.StagedMsg}
}

// Store keeps sessions in memory and mirrors them to the durable store so a
// restart can recover in-flight workflows. Mirror failures are logged and
// otherwise ignored; the cache remains authoritative for the process lifetime.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	durable  store.Store
	logger   *slog.Logger
}

// NewStore creates a session store. The durable store may be nil for
// memory-only operation.
func NewStore(durable store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		durable:  durable,
		logger:   logger.With("component", "sessions"),
	}
}

// Recover loads mirrored sessions from the durable store into memory.
// Called once at startup, before any inbound traffic.
func (s *Store) Recover(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}

	recs, err := s.durable.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing mirrored sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		var data Payload
		if len(rec.Payload) > 0 {
			if err := json.Unmarshal(rec.Payload, &data); err != nil {
				s.logger.Warn("dropping unreadable session mirror",
					"participant_id", rec.ParticipantID, "error", err)
				continue
			}
		}
		s.sessions[rec.ParticipantID] = &Session{
			OwnerID: rec.ParticipantID,
			State:   State(rec.State),
			Data:    data,
		}
	}

	if len(s.sessions) > 0 {
		s.logger.Info("recovered sessions", "count", len(s.sessions))
	}
	return nil
}

// Get returns the session for a participant, or nil when idle.
func (s *Store) Get(participantID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[participantID]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

// Put replaces the session for a participant.
func (s *Store) Put(ctx context.Context, sess *Session) {
	s.mu.Lock()
	cp := *sess
	s.sessions[sess.OwnerID] = &cp
	s.mu.Unlock()

	s.mirror(ctx, &cp)
}

// Delete removes the session for a participant, returning them to idle.
func (s *Store) Delete(ctx context.Context, participantID string) {
	s.mu.Lock()
	delete(s.sessions, participantID)
	s.mu.Unlock()

	if s.durable == nil {
		return
	}
	if err := s.durable.DeleteSession(ctx, participantID); err != nil {
		s.logger.Warn("session mirror delete failed", "participant_id", participantID, "error", err)
	}
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// mirror writes the session to the durable store best-effort.
func (s *Store) mirror(ctx context.Context, sess *Session) {
	if s.durable == nil {
		return
	}

	payload, err := json.Marshal(sess.Data)
	if err != nil {
		s.logger.Warn("session payload encode failed", "participant_id", sess.OwnerID, "error", err)
		return
	}
	rec := &store.SessionRecord{
		ParticipantID: sess.OwnerID,
		State:         string(sess.State),
		Payload:       payload,
		UpdatedAt:     time.Now(),
	}
	if err := s.durable.SaveSession(ctx, rec); err != nil {
		s.logger.Warn("session mirror write failed", "participant_id", sess.OwnerID, "error", err)
	}
}
