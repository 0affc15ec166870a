// ABOUTME: Relay router resolving peer references and executing forwards
// ABOUTME: At-most-once delivery; failures surface to the sender, never the composer

package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devzone/class-relay/internal/engine"
	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
	"github.com/devzone/class-relay/internal/topics"
)

// destination is a resolved peer: a concrete chat, optionally a thread within
// it, and the participant on that end if there is one.
type destination struct {
	chatID    string
	threadID  string
	recipient *store.Participant // nil for group and thread-only destinations
}

// Router executes Forward, Notify, GroupPost and CloseDialog effects.
type Router struct {
	directory *topics.Directory
	sessions  *session.Store
	identity  *identity.Service
	msgr      messenger.Messenger
	catalog   *i18n.Catalog
	groupID   string
	ownerID   string
	logger    *slog.Logger
}

// NewRouter creates a relay router.
func NewRouter(dir *topics.Directory, sessions *session.Store, ident *identity.Service,
	msgr messenger.Messenger, catalog *i18n.Catalog, groupID, ownerID string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		directory: dir,
		sessions:  sessions,
		identity:  ident,
		msgr:      msgr,
		catalog:   catalog,
		groupID:   groupID,
		ownerID:   ownerID,
		logger:    logger.With("component", "relay"),
	}
}

// Forward copies the source message verbatim to the peer. Delivery is
// at-most-once: a transport failure produces a terse notice to the sender and
// is otherwise dropped.
func (r *Router) Forward(ctx context.Context, sender *store.Participant, eff engine.Forward) {
	dest, err := r.resolve(ctx, sender, eff.Peer)
	if err != nil {
		r.logger.Warn("forward peer unresolved", "sender_id", sender.ID, "error", err)
		r.notifySenderFailure(ctx, sender)
		return
	}

	if err := r.msgr.CopyMessage(ctx, dest.chatID, dest.threadID, eff.Src); err != nil {
		r.logger.Warn("forward delivery failed",
			"sender_id", sender.ID, "dest_chat", dest.chatID, "error", err)
		r.notifySenderFailure(ctx, sender)
	}
}

// Notify sends a localized notice to the peer, rendered in the recipient's
// language when the peer is a participant.
func (r *Router) Notify(ctx context.Context, sender *store.Participant, eff engine.Notify) {
	dest, err := r.resolve(ctx, sender, eff.Peer)
	if err != nil {
		r.logger.Warn("notify peer unresolved", "sender_id", sender.ID, "error", err)
		return
	}

	text := r.catalog.Render(r.languageFor(dest), eff.Key, eff.Args)
	if err := r.msgr.SendText(ctx, dest.chatID, dest.threadID, text); err != nil {
		r.logger.Warn("notify delivery failed", "dest_chat", dest.chatID, "error", err)
	}
}

// GroupPost publishes the staged message to the group chat.
func (r *Router) GroupPost(ctx context.Context, sender *store.Participant, eff engine.GroupPost) {
	if err := r.msgr.CopyMessage(ctx, r.groupID, "", eff.Src); err != nil {
		r.logger.Warn("group post failed", "sender_id", sender.ID, "error", err)
		r.notifySenderFailure(ctx, sender)
	}
}

// CloseDialog tears down the dialog between the sender and the peer: both
// sessions are cleared and each end receives a closure notice. The engine only
// owns the sender's session, so the peer side is cleared here.
func (r *Router) CloseDialog(ctx context.Context, sender *store.Participant, eff engine.CloseDialog) {
	dest, err := r.resolve(ctx, sender, eff.Peer)
	if err != nil {
		r.logger.Warn("close dialog peer unresolved", "sender_id", sender.ID, "error", err)
		return
	}

	// The learner end of the dialog holds the session. For a learner closing
	// their own dialog that is the sender; for an instructor closing from a
	// thread it is the resolved recipient.
	r.sessions.Delete(ctx, sender.ID)
	if dest.recipient != nil {
		r.sessions.Delete(ctx, dest.recipient.ID)
	}

	closed := func(lang string) string { return r.catalog.Render(lang, i18n.KeyDialogClosed, nil) }
	if err := r.msgr.SendText(ctx, dest.chatID, dest.threadID, closed(r.languageFor(dest))); err != nil {
		r.logger.Warn("closure notice failed", "dest_chat", dest.chatID, "error", err)
	}
	if err := r.msgr.SendText(ctx, sender.ID, "", closed(sender.Language)); err != nil {
		r.logger.Warn("closure notice failed", "dest_chat", sender.ID, "error", err)
	}

	r.logger.Info("dialog closed", "sender_id", sender.ID, "peer_chat", dest.chatID)
}

// resolve maps a peer reference to a concrete chat destination.
func (r *Router) resolve(ctx context.Context, sender *store.Participant, peer engine.Peer) (destination, error) {
	switch peer.Kind {
	case engine.PeerSelfTopic:
		threadID, err := r.directory.EnsureThread(ctx, sender.ID, sender.DisplayName)
		if err != nil {
			return destination{}, fmt.Errorf("ensuring thread: %w", err)
		}
		return destination{chatID: r.directory.WorkspaceID(), threadID: threadID}, nil

	case engine.PeerTopicLearner:
		learnerID, err := r.directory.ResolveLearnerByThread(ctx, peer.ID)
		if err != nil {
			return destination{}, fmt.Errorf("resolving thread %s: %w", peer.ID, err)
		}
		recipient, err := r.identity.Get(ctx, learnerID)
		if err != nil {
			return destination{}, fmt.Errorf("loading learner %s: %w", learnerID, err)
		}
		return destination{chatID: learnerID, recipient: recipient}, nil

	case engine.PeerOwner:
		recipient, err := r.identity.Get(ctx, r.ownerID)
		if err != nil {
			// The owner may never have messaged the bot; deliver anyway.
			return destination{chatID: r.ownerID}, nil
		}
		return destination{chatID: r.ownerID, recipient: recipient}, nil

	case engine.PeerGroup:
		return destination{chatID: r.groupID}, nil

	default:
		return destination{}, fmt.Errorf("unknown peer kind %d", peer.Kind)
	}
}

// languageFor picks the notice language for a destination. Thread and group
// destinations have no single recipient and use the default catalog language.
func (r *Router) languageFor(dest destination) string {
	if dest.recipient != nil {
		return dest.recipient.Language
	}
	return i18n.DefaultLanguage
}

func (r *Router) notifySenderFailure(ctx context.Context, sender *store.Participant) {
	text := r.catalog.Render(sender.Language, i18n.KeyForwardFailed, nil)
	if err := r.msgr.SendText(ctx, sender.ID, "", text); err != nil {
		r.logger.Warn("failure notice undeliverable", "sender_id", sender.ID, "error", err)
	}
}
