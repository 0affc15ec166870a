// ABOUTME: Identity service for participant records and role resolution
// ABOUTME: Upserts profiles on every contact; role derives from configured identifiers

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/store"
)

// Role classifies a participant. Roles are never stored; they derive from the
// configured instructor and owner identifiers.
type Role int

const (
	RoleLearner Role = iota
	RoleInstructor
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleInstructor:
		return "instructor"
	case RoleOwner:
		return "owner"
	default:
		return "learner"
	}
}

// Privileged reports whether the role may publish content and enter results.
func (r Role) Privileged() bool {
	return r == RoleInstructor || r == RoleOwner
}

// Profile is the transport-level identity attached to an inbound message.
type Profile struct {
	ID          string
	DisplayName string
	Username    string
}

// Service owns participant records. Durable-store failures degrade to a
// memory-served cache so inbound handling never stalls on the database.
type Service struct {
	store        store.Store
	instructorID string
	ownerID      string
	logger       *slog.Logger

	cache *participantCache
}

// New creates an identity service.
func New(st store.Store, instructorID, ownerID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		instructorID: instructorID,
		ownerID:      ownerID,
		logger:       logger.With("component", "identity"),
		cache:        newParticipantCache(),
	}
}

// RoleOf resolves a participant's role from the configured identifiers.
func (s *Service) RoleOf(participantID string) Role {
	switch participantID {
	case s.ownerID:
		return RoleOwner
	case s.instructorID:
		return RoleInstructor
	default:
		return RoleLearner
	}
}

// UpsertProfile creates or refreshes the participant record for an inbound
// contact and returns the current view of it. The name and username are
// refreshed on every message; phone and registration survive refreshes.
func (s *Service) UpsertProfile(ctx context.Context, prof Profile) (*store.Participant, error) {
	now := time.Now()

	p := s.cache.get(prof.ID)
	if p == nil {
		stored, err := s.store.GetParticipant(ctx, prof.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("participant read failed, serving from memory", "participant_id", prof.ID, "error", err)
		}
		p = stored
	}

	if p == nil {
		p = &store.Participant{
			ID:        prof.ID,
			Language:  i18n.DefaultLanguage,
			CreatedAt: now,
		}
	}
	p.DisplayName = prof.DisplayName
	p.Username = prof.Username
	p.UpdatedAt = now

	s.cache.put(p)
	if err := s.store.UpsertParticipant(ctx, p); err != nil {
		s.logger.Warn("participant write failed, keeping memory copy", "participant_id", prof.ID, "error", err)
	}
	return p, nil
}

// Get returns a participant by ID, consulting the cache first.
func (s *Service) Get(ctx context.Context, id string) (*store.Participant, error) {
	if p := s.cache.get(id); p != nil {
		return p, nil
	}
	p, err := s.store.GetParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(p)
	return p, nil
}

// Register completes a participant's registration with a verified phone.
func (s *Service) Register(ctx context.Context, id, displayName, phone string) (*store.Participant, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading participant: %w", err)
	}

	now := time.Now()
	p.DisplayName = displayName
	p.Phone = phone
	p.RegisteredAt = &now
	p.UpdatedAt = now

	s.cache.put(p)
	if err := s.store.UpsertParticipant(ctx, p); err != nil {
		s.logger.Warn("registration write failed, keeping memory copy", "participant_id", id, "error", err)
	}
	return p, nil
}

// SetLanguage updates a participant's interface language preference.
func (s *Service) SetLanguage(ctx context.Context, id, lang string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading participant: %w", err)
	}

	p.Language = lang
	p.UpdatedAt = time.Now()

	s.cache.put(p)
	if err := s.store.UpsertParticipant(ctx, p); err != nil {
		s.logger.Warn("language write failed, keeping memory copy", "participant_id", id, "error", err)
	}
	return nil
}

// ListRegistered returns the broadcast roster: registered learners only.
// The instructor and owner are excluded even if they registered.
func (s *Service) ListRegistered(ctx context.Context) ([]*store.Participant, error) {
	all, err := s.store.ListRegistered(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing registered participants: %w", err)
	}
	out := make([]*store.Participant, 0, len(all))
	for _, p := range all {
		if s.RoleOf(p.ID) != RoleLearner {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ListAll returns every participant record.
func (s *Service) ListAll(ctx context.Context) ([]*store.Participant, error) {
	return s.store.ListParticipants(ctx)
}
