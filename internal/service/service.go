// ABOUTME: Orchestrator tying identity, sessions, engine, relay and store together
// ABOUTME: Serializes events per participant and executes transition effects in order

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devzone/class-relay/internal/dedupe"
	"github.com/devzone/class-relay/internal/engine"
	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/relay"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
	"github.com/devzone/class-relay/internal/topics"
)

// giftStars is the fixed payment amount for the support-project invoice.
const giftStars = 30

// Options configures the service.
type Options struct {
	GroupID           string
	RequireMembership bool
	DedupeTTL         time.Duration
	DedupeSize        int
}

// Service is the inbound entry point for the presentation layer.
type Service struct {
	engine     *engine.Engine
	sessions   *session.Store
	identity   *identity.Service
	directory  *topics.Directory
	router     *relay.Router
	dispatcher *relay.Dispatcher
	store      store.Store
	msgr       messenger.Messenger
	catalog    *i18n.Catalog
	seen       *dedupe.Cache
	opts       Options
	locks      *keyedLocks
	logger     *slog.Logger
}

// New wires a service from its collaborators.
func New(eng *engine.Engine, sessions *session.Store, ident *identity.Service,
	dir *topics.Directory, router *relay.Router, dispatcher *relay.Dispatcher,
	st store.Store, msgr messenger.Messenger, catalog *i18n.Catalog,
	opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	size := opts.DedupeSize
	if size <= 0 {
		size = 4096
	}
	return &Service{
		engine:     eng,
		sessions:   sessions,
		identity:   ident,
		directory:  dir,
		router:     router,
		dispatcher: dispatcher,
		store:      st,
		msgr:       msgr,
		catalog:    catalog,
		seen:       dedupe.New(ttl, size),
		opts:       opts,
		locks:      newKeyedLocks(),
		logger:     logger.With("component", "service"),
	}
}

// HandleInbound processes one inbound message end to end: profile upsert,
// membership gate, engine transition, session persistence, effect execution.
// Events for the same participant are serialized; different participants run
// concurrently.
func (s *Service) HandleInbound(ctx context.Context, prof identity.Profile, msg engine.Inbound) error {
	if key := msg.Ref.ChatID + ":" + msg.Ref.MessageID; msg.Ref.MessageID != "" && s.seen.CheckAndMark(key) {
		s.logger.Debug("duplicate update dropped", "key", key)
		return nil
	}

	unlock := s.locks.lock(prof.ID)
	defer unlock()

	p, err := s.identity.UpsertProfile(ctx, prof)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	role := s.identity.RoleOf(p.ID)

	if role == identity.RoleLearner && s.opts.RequireMembership {
		status, err := s.msgr.GetMembershipStatus(ctx, s.opts.GroupID, p.ID)
		if err != nil {
			s.logger.Warn("membership check failed, allowing through", "participant_id", p.ID, "error", err)
		} else if !status.Active() {
			s.reply(ctx, p, i18n.KeyAccessDenied, nil)
			return nil
		}
	}

	sess := s.sessions.Get(p.ID)
	next, effects := s.engine.Transition(p, sess, msg, role)

	if next == nil {
		if sess != nil {
			s.sessions.Delete(ctx, p.ID)
		}
	} else if next != sess {
		s.sessions.Put(ctx, next)
	}

	for _, eff := range effects {
		s.execute(ctx, p, eff)
	}
	return nil
}

// execute applies one effect. Transport and durability failures are logged or
// surfaced as terse notices; they never propagate into the engine's state.
func (s *Service) execute(ctx context.Context, p *store.Participant, eff engine.Effect) {
	switch e := eff.(type) {
	case engine.Reply:
		s.reply(ctx, p, e.Key, e.Args)

	case engine.RequestContact:
		prompt := s.catalog.Render(p.Language, e.Key, nil)
		if err := s.msgr.RequestVerifiedContact(ctx, p.ID, prompt); err != nil {
			s.logger.Warn("contact request failed", "participant_id", p.ID, "error", err)
		}

	case engine.Forward:
		s.router.Forward(ctx, p, e)

	case engine.Notify:
		s.router.Notify(ctx, p, e)

	case engine.GroupPost:
		s.router.GroupPost(ctx, p, e)

	case engine.CloseDialog:
		s.router.CloseDialog(ctx, p, e)

	case engine.PersistContent:
		slot := &store.ContentSlot{
			Kind:      e.Kind,
			ChatID:    e.Src.ChatID,
			MessageID: e.Src.MessageID,
			UpdatedBy: p.ID,
			UpdatedAt: time.Now(),
		}
		if err := s.store.SetContentSlot(ctx, slot); err != nil {
			s.logger.Error("content slot write failed", "kind", e.Kind, "error", err)
		}

	case engine.SendContent:
		s.sendContent(ctx, p, e.Kind)

	case engine.UpsertResult:
		r := e.Result
		r.UpdatedAt = time.Now()
		if err := s.store.UpsertResult(ctx, &r); err != nil {
			s.logger.Error("result write failed", "key", r.Key, "error", err)
		}

	case engine.SendResults:
		s.sendResults(ctx, p)

	case engine.Broadcast:
		s.broadcast(ctx, p, e.Src)

	case engine.CompleteRegistration:
		if _, err := s.identity.Register(ctx, p.ID, e.Name, e.Phone); err != nil {
			s.logger.Error("registration failed", "participant_id", p.ID, "error", err)
			return
		}
		// Keep the in-flight view current so later effects see the new name.
		p.DisplayName = e.Name
		p.Phone = e.Phone

	case engine.SetLanguage:
		if !s.catalog.Supported(e.Lang) {
			s.logger.Warn("unsupported language ignored", "participant_id", p.ID, "lang", e.Lang)
			return
		}
		if err := s.identity.SetLanguage(ctx, p.ID, e.Lang); err != nil {
			s.logger.Warn("language update failed", "participant_id", p.ID, "error", err)
			return
		}
		p.Language = e.Lang

	case engine.SendInvoice:
		s.sendInvoice(ctx, p)

	case engine.SendContactList:
		s.sendContactList(ctx, p)

	case engine.SendStats:
		s.sendStats(ctx, p)

	default:
		s.logger.Error("unknown effect", "type", fmt.Sprintf("%T", eff))
	}
}

func (s *Service) reply(ctx context.Context, p *store.Participant, key string, args map[string]string) {
	text := s.catalog.Render(p.Language, key, args)
	if err := s.msgr.SendText(ctx, p.ID, "", text); err != nil {
		s.logger.Warn("reply failed", "participant_id", p.ID, "error", err)
	}
}

func (s *Service) sendContent(ctx context.Context, p *store.Participant, kind store.ContentKind) {
	slot, err := s.store.GetContentSlot(ctx, kind)
	if errors.Is(err, store.ErrNotFound) {
		s.reply(ctx, p, i18n.KeyNoContent, nil)
		return
	}
	if err != nil {
		s.logger.Error("content slot read failed", "kind", kind, "error", err)
		s.reply(ctx, p, i18n.KeyNoContent, nil)
		return
	}

	src := messenger.MessageRef{ChatID: slot.ChatID, MessageID: slot.MessageID}
	if err := s.msgr.CopyMessage(ctx, p.ID, "", src); err != nil {
		s.logger.Warn("content delivery failed", "participant_id", p.ID, "kind", kind, "error", err)
		s.reply(ctx, p, i18n.KeyForwardFailed, nil)
	}
}

func (s *Service) sendResults(ctx context.Context, p *store.Participant) {
	results, err := s.store.ListResults(ctx)
	if err != nil {
		s.logger.Error("result list failed", "error", err)
		s.reply(ctx, p, i18n.KeyNoResults, nil)
		return
	}
	if len(results) == 0 {
		s.reply(ctx, p, i18n.KeyNoResults, nil)
		return
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, s.catalog.Render(p.Language, i18n.KeyResultLine, map[string]string{
			"name":     r.DisplayName,
			"grammar":  formatPercent(r.GrammarPercent),
			"wordlist": formatPercent(r.WordlistPercent),
		}))
	}
	if err := s.msgr.SendText(ctx, p.ID, "", strings.Join(lines, "\n")); err != nil {
		s.logger.Warn("result delivery failed", "participant_id", p.ID, "error", err)
	}
}

func (s *Service) broadcast(ctx context.Context, p *store.Participant, src messenger.MessageRef) {
	recipients, err := s.identity.ListRegistered(ctx)
	if err != nil {
		s.logger.Error("broadcast roster load failed", "error", err)
		s.reply(ctx, p, i18n.KeyForwardFailed, nil)
		return
	}

	outcome := s.dispatcher.Dispatch(ctx, src, recipients)
	s.reply(ctx, p, i18n.KeyBroadcastDone, map[string]string{
		"delivered": strconv.Itoa(outcome.Delivered),
		"failed":    strconv.Itoa(outcome.Failed),
	})
}

func (s *Service) sendInvoice(ctx context.Context, p *store.Participant) {
	inv := messenger.Invoice{
		Title:       s.catalog.Render(p.Language, i18n.KeyGiftTitle, nil),
		Description: s.catalog.Render(p.Language, i18n.KeyGiftDescription, nil),
		Label:       s.catalog.Render(p.Language, i18n.KeyGiftLabel, nil),
		Amount:      giftStars,
		PayloadID:   uuid.New().String(),
	}
	if err := s.msgr.CreatePaymentInvoice(ctx, p.ID, inv); err != nil {
		s.logger.Warn("invoice failed", "participant_id", p.ID, "error", err)
		s.reply(ctx, p, i18n.KeyGiftFailed, nil)
		return
	}
	s.reply(ctx, p, i18n.KeyGiftSent, nil)
}

func (s *Service) sendContactList(ctx context.Context, p *store.Participant) {
	registered, err := s.identity.ListRegistered(ctx)
	if err != nil {
		s.logger.Error("contact list failed", "error", err)
		s.reply(ctx, p, i18n.KeyPhonesEmpty, nil)
		return
	}
	if len(registered) == 0 {
		s.reply(ctx, p, i18n.KeyPhonesEmpty, nil)
		return
	}

	lines := []string{s.catalog.Render(p.Language, i18n.KeyPhonesTitle, nil)}
	for _, rec := range registered {
		lines = append(lines, s.catalog.Render(p.Language, i18n.KeyPhoneLine, map[string]string{
			"name":  rec.DisplayName,
			"phone": rec.Phone,
		}))
	}
	if err := s.msgr.SendText(ctx, p.ID, "", strings.Join(lines, "\n")); err != nil {
		s.logger.Warn("contact list delivery failed", "participant_id", p.ID, "error", err)
	}
}

func (s *Service) sendStats(ctx context.Context, p *store.Participant) {
	all, err := s.identity.ListAll(ctx)
	if err != nil {
		s.logger.Error("stats load failed", "error", err)
		return
	}
	registered := 0
	for _, rec := range all {
		if rec.Registered() {
			registered++
		}
	}
	s.reply(ctx, p, i18n.KeyStats, map[string]string{
		"participants": strconv.Itoa(len(all)),
		"registered":   strconv.Itoa(registered),
		"topics":       strconv.Itoa(s.directory.Count(ctx)),
	})
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
