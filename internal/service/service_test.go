// ABOUTME: End-to-end tests for the service orchestrator
// ABOUTME: Drives full flows through HandleInbound against mock transport and store

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devzone/class-relay/internal/engine"
	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/relay"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
	"github.com/devzone/class-relay/internal/topics"
)

type fixture struct {
	svc      *Service
	sessions *session.Store
	ident    *identity.Service
	dir      *topics.Directory
	msgr     *messenger.Mock
	st       *store.MockStore
	catalog  *i18n.Catalog
	nextMsg  int
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	catalog, err := i18n.Load()
	require.NoError(t, err)

	st := store.NewMockStore()
	msgr := messenger.NewMock()
	sessions := session.NewStore(st, nil)
	ident := identity.New(st, "instructor", "owner", nil)
	dir := topics.New(st, msgr, "workspace", nil)
	router := relay.NewRouter(dir, sessions, ident, msgr, catalog, opts.GroupID, "owner", nil)
	dispatcher := relay.NewDispatcher(msgr, 2, nil)
	eng := engine.New(true)

	return &fixture{
		svc:      New(eng, sessions, ident, dir, router, dispatcher, st, msgr, catalog, opts, nil),
		sessions: sessions,
		ident:    ident,
		dir:      dir,
		msgr:     msgr,
		st:       st,
		catalog:  catalog,
	}
}

func (f *fixture) send(t *testing.T, userID, name string, msg engine.Inbound) {
	t.Helper()
	f.nextMsg++
	if msg.Ref.MessageID == "" {
		msg.Ref = messenger.MessageRef{ChatID: userID, MessageID: fmt.Sprintf("msg-%d", f.nextMsg)}
	}
	err := f.svc.HandleInbound(context.Background(), identity.Profile{ID: userID, DisplayName: name}, msg)
	require.NoError(t, err)
}

func (f *fixture) sendText(t *testing.T, userID, name, text string) {
	f.send(t, userID, name, engine.Inbound{Text: text})
}

func (f *fixture) sendIntent(t *testing.T, userID, name string, in engine.Intent) {
	f.send(t, userID, name, engine.Inbound{Intent: in})
}

func (f *fixture) lastTextTo(t *testing.T, chatID string) string {
	t.Helper()
	texts := f.msgr.TextsTo(chatID)
	require.NotEmpty(t, texts, "no texts sent to %s", chatID)
	return texts[len(texts)-1].Text
}

func (f *fixture) register(t *testing.T, userID, name string) {
	t.Helper()
	f.sendText(t, userID, name, "hi")
	f.sendText(t, userID, name, name)
	f.send(t, userID, name, engine.Inbound{Contact: &engine.Contact{OwnerID: userID, Phone: "+7" + userID}})
}

func TestRegistrationFlow_EndToEnd(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendText(t, "u1", "Alice", "hello")
	assert.Equal(t, f.catalog.Render("ru", i18n.KeyAskName, nil), f.lastTextTo(t, "u1"))

	f.sendText(t, "u1", "Alice", "Alice Smith")
	assert.Equal(t, f.catalog.Render("ru", i18n.KeyAskContact, nil), f.lastTextTo(t, "u1"))

	f.send(t, "u1", "Alice", engine.Inbound{Contact: &engine.Contact{OwnerID: "u1", Phone: "+711"}})

	// Session gone, participant registered, student card in the workspace thread.
	assert.Nil(t, f.svc.GetSession("u1"))
	p, err := f.st.GetParticipant(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "+711", p.Phone)
	assert.Equal(t, "Alice Smith", p.DisplayName)
	assert.NotNil(t, p.RegisteredAt)
	assert.NotEmpty(t, f.msgr.TextsTo("workspace"))
}

func TestRegistration_ForeignContactKeepsSession(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendText(t, "u1", "Alice", "hello")
	f.sendText(t, "u1", "Alice", "Alice")
	f.send(t, "u1", "Alice", engine.Inbound{Contact: &engine.Contact{OwnerID: "u2", Phone: "+799"}})

	sess := f.svc.GetSession("u1")
	require.NotNil(t, sess)
	assert.Equal(t, session.StateRegisteringPhone, sess.State)
	p, err := f.st.GetParticipant(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.Registered())
}

func TestContentPublishAndFetch(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendIntent(t, "instructor", "Teacher", engine.IntentSetHomework)
	f.send(t, "instructor", "Teacher", engine.Inbound{
		Text: "read chapter 4",
		Ref:  messenger.MessageRef{ChatID: "instructor", MessageID: "hw-1"},
	})
	f.sendIntent(t, "instructor", "Teacher", engine.IntentConfirm)

	slot, err := f.svc.GetContentSlot(context.Background(), store.ContentHomework)
	require.NoError(t, err)
	assert.Equal(t, "hw-1", slot.MessageID)
	assert.Equal(t, "instructor", slot.UpdatedBy)
	assert.Nil(t, f.svc.GetSession("instructor"))

	f.register(t, "u1", "Alice")
	f.sendIntent(t, "u1", "Alice", engine.IntentShowHomework)

	var got *messenger.CopiedMessage
	for i := range f.msgr.Copies {
		if f.msgr.Copies[i].DestChatID == "u1" {
			got = &f.msgr.Copies[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "hw-1", got.Src.MessageID)
}

func TestContentFetch_EmptySlot(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.sendIntent(t, "u1", "Alice", engine.IntentShowVocabulary)

	assert.Equal(t, f.catalog.Render("ru", i18n.KeyNoContent, nil), f.lastTextTo(t, "u1"))
}

func TestContentCancel_LeavesSlotUntouched(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendIntent(t, "instructor", "Teacher", engine.IntentSetMaterials)
	f.send(t, "instructor", "Teacher", engine.Inbound{
		Ref: messenger.MessageRef{ChatID: "instructor", MessageID: "mat-1"},
	})
	f.sendIntent(t, "instructor", "Teacher", engine.IntentCancel)

	assert.Nil(t, f.svc.GetSession("instructor"))
	_, err := f.svc.GetContentSlot(context.Background(), store.ContentMaterials)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResultEntry_OverwritesByNormalizedName(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	ctx := context.Background()

	enter := func(name, grammar, words string) {
		f.sendIntent(t, "instructor", "Teacher", engine.IntentNewResult)
		f.sendText(t, "instructor", "Teacher", name)
		f.sendText(t, "instructor", "Teacher", grammar)
		f.sendText(t, "instructor", "Teacher", words)
		f.sendIntent(t, "instructor", "Teacher", engine.IntentConfirm)
	}

	enter("Alice Smith", "80", "70")
	enter("  alice   SMITH ", "90,5", "85")

	results, err := f.svc.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 90.5, results[0].GrammarPercent)
	assert.Equal(t, 85.0, results[0].WordlistPercent)
}

func TestResultsVisibleToLearners(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendIntent(t, "instructor", "Teacher", engine.IntentNewResult)
	f.sendText(t, "instructor", "Teacher", "Alice")
	f.sendText(t, "instructor", "Teacher", "88")
	f.sendText(t, "instructor", "Teacher", "77")
	f.sendIntent(t, "instructor", "Teacher", engine.IntentConfirm)

	f.register(t, "u1", "Bob")
	f.sendIntent(t, "u1", "Bob", engine.IntentShowResults)

	last := f.lastTextTo(t, "u1")
	assert.Contains(t, last, "Alice")
	assert.Contains(t, last, "88")
	assert.Contains(t, last, "77")
}

func TestDialog_FullRoundTrip(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.sendIntent(t, "u1", "Alice", engine.IntentTeacherChat)
	sess := f.svc.GetSession("u1")
	require.NotNil(t, sess)
	assert.Equal(t, session.StateInDialog, sess.State)

	threadID, ok := f.svc.GetTopicMapping(context.Background(), "u1")
	require.True(t, ok)

	// Learner message lands in the workspace thread.
	f.send(t, "u1", "Alice", engine.Inbound{
		Text: "I need help",
		Ref:  messenger.MessageRef{ChatID: "u1", MessageID: "q-1"},
	})
	var toThread []messenger.CopiedMessage
	for _, c := range f.msgr.Copies {
		if c.DestChatID == "workspace" && c.DestThreadID == threadID {
			toThread = append(toThread, c)
		}
	}
	require.NotEmpty(t, toThread)
	assert.Equal(t, "q-1", toThread[len(toThread)-1].Src.MessageID)

	// Instructor reply in the thread goes back to the learner chat.
	f.send(t, "instructor", "Teacher", engine.Inbound{
		Text:     "sure",
		ThreadID: threadID,
		Ref:      messenger.MessageRef{ChatID: "workspace", MessageID: "a-1"},
	})
	var toLearner []messenger.CopiedMessage
	for _, c := range f.msgr.Copies {
		if c.DestChatID == "u1" {
			toLearner = append(toLearner, c)
		}
	}
	require.NotEmpty(t, toLearner)
	assert.Equal(t, "a-1", toLearner[len(toLearner)-1].Src.MessageID)

	// Instructor finishes from the thread; the learner session is cleared.
	f.send(t, "instructor", "Teacher", engine.Inbound{Intent: engine.IntentFinish, ThreadID: threadID})
	assert.Nil(t, f.svc.GetSession("u1"))
}

func TestBroadcast_DeliveryCountsReported(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("u%d", i)
		f.register(t, id, "Learner "+id)
	}
	f.msgr.FailChats["u2"] = true
	f.msgr.FailChats["u4"] = true

	f.sendIntent(t, "owner", "Boss", engine.IntentBroadcastAll)
	f.send(t, "owner", "Boss", engine.Inbound{
		Text: "class moved to friday",
		Ref:  messenger.MessageRef{ChatID: "owner", MessageID: "bc-1"},
	})
	f.sendIntent(t, "owner", "Boss", engine.IntentConfirm)

	assert.Nil(t, f.svc.GetSession("owner"))
	want := f.catalog.Render("ru", i18n.KeyBroadcastDone, map[string]string{"delivered": "3", "failed": "2"})
	assert.Equal(t, want, f.lastTextTo(t, "owner"))
}

func TestBroadcast_ExcludesStaff(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")
	// Push a message from the instructor so a participant record exists.
	f.sendText(t, "instructor", "Teacher", "hello")

	f.sendIntent(t, "owner", "Boss", engine.IntentBroadcastAll)
	f.send(t, "owner", "Boss", engine.Inbound{
		Ref: messenger.MessageRef{ChatID: "owner", MessageID: "bc-2"},
	})
	f.sendIntent(t, "owner", "Boss", engine.IntentConfirm)

	for _, c := range f.msgr.Copies {
		assert.NotEqual(t, "instructor", c.DestChatID)
		assert.NotEqual(t, "owner", c.DestChatID)
	}
}

func TestGroupPost_EndToEnd(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.sendIntent(t, "owner", "Boss", engine.IntentPostToGroup)
	f.send(t, "owner", "Boss", engine.Inbound{
		Ref: messenger.MessageRef{ChatID: "owner", MessageID: "gp-1"},
	})
	f.sendIntent(t, "owner", "Boss", engine.IntentConfirm)

	require.Len(t, f.msgr.Copies, 1)
	assert.Equal(t, "group", f.msgr.Copies[0].DestChatID)
	assert.Equal(t, "gp-1", f.msgr.Copies[0].Src.MessageID)
}

func TestFeedback_ForwardedToOwner(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.sendIntent(t, "u1", "Alice", engine.IntentFeedback)
	f.send(t, "u1", "Alice", engine.Inbound{
		Text: "more speaking practice please",
		Ref:  messenger.MessageRef{ChatID: "u1", MessageID: "fb-1"},
	})

	assert.Nil(t, f.svc.GetSession("u1"))
	assert.NotEmpty(t, f.msgr.TextsTo("owner"))
	var toOwner []messenger.CopiedMessage
	for _, c := range f.msgr.Copies {
		if c.DestChatID == "owner" {
			toOwner = append(toOwner, c)
		}
	}
	require.Len(t, toOwner, 1)
	assert.Equal(t, "fb-1", toOwner[0].Src.MessageID)
}

func TestMembershipGate_BlocksBannedLearner(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group", RequireMembership: true})
	f.msgr.Memberships["u1"] = messenger.MemberBanned

	f.sendText(t, "u1", "Alice", "hello")

	assert.Equal(t, f.catalog.Render("ru", i18n.KeyAccessDenied, nil), f.lastTextTo(t, "u1"))
	assert.Nil(t, f.svc.GetSession("u1"))
}

func TestMembershipGate_IgnoresStaff(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group", RequireMembership: true})
	f.msgr.Memberships["instructor"] = messenger.MemberBanned

	f.sendIntent(t, "instructor", "Teacher", engine.IntentSetHomework)

	sess := f.svc.GetSession("instructor")
	require.NotNil(t, sess)
	assert.Equal(t, session.StateAwaitingContent, sess.State)
}

func TestDedupe_DropsRepeatedUpdate(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group", DedupeTTL: time.Minute})

	msg := engine.Inbound{Text: "hello", Ref: messenger.MessageRef{ChatID: "u1", MessageID: "dup-1"}}
	f.send(t, "u1", "Alice", msg)
	before := len(f.msgr.TextsTo("u1"))

	f.send(t, "u1", "Alice", msg)
	assert.Equal(t, before, len(f.msgr.TextsTo("u1")))
}

func TestSetLanguage_ChangesReplies(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.send(t, "u1", "Alice", engine.Inbound{Intent: engine.IntentSetLanguage, Lang: "en"})
	assert.Equal(t, f.catalog.Render("en", i18n.KeyLanguageChanged, nil), f.lastTextTo(t, "u1"))

	f.sendText(t, "u1", "Alice", "hello")
	assert.Equal(t, f.catalog.Render("en", i18n.KeyAskName, nil), f.lastTextTo(t, "u1"))
}

func TestSetLanguage_UnsupportedIgnored(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})

	f.send(t, "u1", "Alice", engine.Inbound{Intent: engine.IntentSetLanguage, Lang: "xx"})

	p, err := f.ident.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, i18n.DefaultLanguage, p.Language)
}

func TestGift_InvoiceIssued(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.sendIntent(t, "u1", "Alice", engine.IntentGift)

	require.Len(t, f.msgr.Invoices, 1)
	assert.Equal(t, int64(giftStars), f.msgr.Invoices[0].Amount)
	assert.NotEmpty(t, f.msgr.Invoices[0].PayloadID)
}

func TestPaymentConfirmed_Acknowledged(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.svc.HandlePaymentConfirmed(context.Background(), "u1")

	assert.Equal(t, f.catalog.Render("ru", i18n.KeyGiftPaid, nil), f.lastTextTo(t, "u1"))
}

func TestContactList_OwnerOnlySeesPhones(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")

	f.sendIntent(t, "owner", "Boss", engine.IntentListPhones)
	last := f.lastTextTo(t, "owner")
	assert.Contains(t, last, "Alice")
	assert.Contains(t, last, "+7u1")

	f.sendIntent(t, "u1", "Alice", engine.IntentListPhones)
	assert.Equal(t, f.catalog.Render("ru", i18n.KeyMenuNudge, nil), f.lastTextTo(t, "u1"))
}

func TestStats_CountsParticipantsAndTopics(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.register(t, "u1", "Alice")
	f.sendText(t, "u2", "Bob", "hi") // starts registration, not finished

	f.sendIntent(t, "owner", "Boss", engine.IntentStats)

	// Registration posts the student card into the learner's thread, so u1
	// already has a topic.
	want := f.catalog.Render("ru", i18n.KeyStats, map[string]string{
		"participants": "3", // u1, u2, owner
		"registered":   "1",
		"topics":       "1",
	})
	assert.Equal(t, want, f.lastTextTo(t, "owner"))
}

func TestModerate_AppliesAndRejectsUnknown(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	ctx := context.Background()

	require.NoError(t, f.svc.Moderate(ctx, ActionBan, "u1"))
	assert.Equal(t, messenger.MemberBanned, f.msgr.Memberships["u1"])

	require.NoError(t, f.svc.Moderate(ctx, ActionUnban, "u1"))
	require.NoError(t, f.svc.Moderate(ctx, ActionRestrict, "u1"))
	assert.Equal(t, messenger.MemberRestricted, f.msgr.Memberships["u1"])

	assert.Error(t, f.svc.Moderate(ctx, "explode", "u1"))
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFixture(t, Options{GroupID: "group"})
	f.sendIntent(t, "instructor", "Teacher", engine.IntentSetHomework)

	// A second session store over the same durable store sees the workflow.
	recovered := session.NewStore(f.st, nil)
	require.NoError(t, recovered.Recover(context.Background()))
	sess := recovered.Get("instructor")
	require.NotNil(t, sess)
	assert.Equal(t, session.StateAwaitingContent, sess.State)
	assert.Equal(t, store.ContentHomework, sess.Data.ContentKind)
}
