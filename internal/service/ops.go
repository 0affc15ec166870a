// ABOUTME: Query and moderation surface exposed to the presentation layer
// ABOUTME: Session/content/result lookups, group moderation, payment acknowledgement

package service

import (
	"context"
	"fmt"

	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
)

// ModerationAction is a group-level action the owner can apply to a learner.
type ModerationAction string

const (
	ActionRestrict   ModerationAction = "restrict"
	ActionUnrestrict ModerationAction = "unrestrict"
	ActionBan        ModerationAction = "ban"
	ActionUnban      ModerationAction = "unban"
)

// GetSession returns the active session for a participant, or nil when idle.
func (s *Service) GetSession(participantID string) *session.Session {
	return s.sessions.Get(participantID)
}

// GetContentSlot returns the last published slot for a kind.
// Returns store.ErrNotFound before the first publish.
func (s *Service) GetContentSlot(ctx context.Context, kind store.ContentKind) (*store.ContentSlot, error) {
	return s.store.GetContentSlot(ctx, kind)
}

// ListResults returns all stored results.
func (s *Service) ListResults(ctx context.Context) ([]*store.Result, error) {
	return s.store.ListResults(ctx)
}

// GetTopicMapping returns the thread mapped to a learner, if one exists.
func (s *Service) GetTopicMapping(ctx context.Context, learnerID string) (string, bool) {
	return s.directory.Lookup(ctx, learnerID)
}

// Moderate applies a group moderation action to a learner on behalf of the owner.
func (s *Service) Moderate(ctx context.Context, action ModerationAction, learnerID string) error {
	var err error
	switch action {
	case ActionRestrict:
		err = s.msgr.RestrictMember(ctx, s.opts.GroupID, learnerID, true)
	case ActionUnrestrict:
		err = s.msgr.RestrictMember(ctx, s.opts.GroupID, learnerID, false)
	case ActionBan:
		err = s.msgr.BanMember(ctx, s.opts.GroupID, learnerID)
	case ActionUnban:
		err = s.msgr.UnbanMember(ctx, s.opts.GroupID, learnerID)
	default:
		return fmt.Errorf("unknown moderation action %q", action)
	}
	if err != nil {
		return fmt.Errorf("applying %s to %s: %w", action, learnerID, err)
	}

	s.logger.Info("moderation applied", "action", string(action), "learner_id", learnerID)
	return nil
}

// HandlePaymentConfirmed acknowledges a completed payment reported by the
// transport.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, participantID string) {
	p, err := s.identity.Get(ctx, participantID)
	if err != nil {
		s.logger.Warn("payment from unknown participant", "participant_id", participantID, "error", err)
		return
	}
	s.reply(ctx, p, i18n.KeyGiftPaid, nil)
	s.logger.Info("payment confirmed", "participant_id", participantID)
}
