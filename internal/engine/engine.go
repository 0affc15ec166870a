// ABOUTME: Conversation engine: the per-participant finite-state machine
// ABOUTME: Transition is pure; it returns the next session and ordered effects

package engine

import (
	"strconv"
	"strings"

	"github.com/devzone/class-relay/internal/i18n"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/session"
	"github.com/devzone/class-relay/internal/store"
)

// minNameLen is the shortest accepted registration or result name, in runes.
const minNameLen = 2

// Engine computes session transitions. It holds only policy, no mutable state.
type Engine struct {
	// RequireRegistration gates unregistered learners into the registration
	// flow before anything else. Deployment policy, not fixed behavior.
	RequireRegistration bool
}

// New creates an engine with the given registration policy.
func New(requireRegistration bool) *Engine {
	return &Engine{RequireRegistration: requireRegistration}
}

// Transition computes the next session and the ordered side effects for one
// inbound message. Inputs are read-only. A nil next session means the sender
// returns to idle.
func (e *Engine) Transition(p *store.Participant, sess *session.Session, msg Inbound, role identity.Role) (*session.Session, []Effect) {
	// Instructor traffic inside a workspace thread is a stateless relay: the
	// thread itself names the learner peer, so no instructor session is needed
	// and many dialogs can be open at once.
	if role.Privileged() && msg.ThreadID != "" {
		peer := Peer{Kind: PeerTopicLearner, ID: msg.ThreadID}
		if msg.Intent == IntentFinish {
			return sess, []Effect{CloseDialog{Peer: peer}}
		}
		return sess, []Effect{Forward{Peer: peer, Src: msg.Ref}}
	}

	if sess != nil && sess.State != session.StateIdle {
		return e.stepSession(p, sess, msg)
	}

	// No active session: interpret the intent.
	if role == identity.RoleLearner && e.RequireRegistration && !p.Registered() && msg.Intent != IntentSetLanguage {
		next := &session.Session{OwnerID: p.ID, State: session.StateRegisteringName}
		return next, []Effect{Reply{Key: i18n.KeyAskName}}
	}

	return e.startIntent(p, msg, role)
}

// startIntent handles a message with no workflow in progress.
func (e *Engine) startIntent(p *store.Participant, msg Inbound, role identity.Role) (*session.Session, []Effect) {
	switch msg.Intent {
	case IntentSetLanguage:
		return nil, []Effect{
			SetLanguage{Lang: msg.Lang},
			Reply{Key: i18n.KeyLanguageChanged},
		}

	case IntentShowHomework:
		return nil, []Effect{SendContent{Kind: store.ContentHomework}}
	case IntentShowVocabulary:
		return nil, []Effect{SendContent{Kind: store.ContentVocabulary}}
	case IntentShowMaterials:
		return nil, []Effect{SendContent{Kind: store.ContentMaterials}}
	case IntentShowResults:
		return nil, []Effect{SendResults{}}

	case IntentGift:
		return nil, []Effect{SendInvoice{}}

	case IntentFeedback:
		next := &session.Session{OwnerID: p.ID, State: session.StateAwaitingFeedbackText}
		return next, []Effect{Reply{Key: i18n.KeyFeedbackPrompt}}

	case IntentTeacherChat:
		next := &session.Session{OwnerID: p.ID, State: session.StateInDialog}
		return next, []Effect{
			Notify{
				Peer: Peer{Kind: PeerSelfTopic, ID: p.ID},
				Key:  i18n.KeyHelpRequest,
				Args: map[string]string{"name": p.DisplayName, "id": p.ID},
			},
			Reply{Key: i18n.KeyDialogOpened},
		}

	case IntentSetHomework, IntentSetVocabulary, IntentSetMaterials:
		if !role.Privileged() {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingContent,
			Data:    session.Payload{ContentKind: contentKindFor(msg.Intent)},
		}
		return next, []Effect{Reply{Key: i18n.KeySetContentPrompt}}

	case IntentPostToGroup:
		if !role.Privileged() {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		next := &session.Session{OwnerID: p.ID, State: session.StateAwaitingGroupPost}
		return next, []Effect{Reply{Key: i18n.KeyGroupPostPrompt}}

	case IntentNewResult:
		if !role.Privileged() {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		next := &session.Session{OwnerID: p.ID, State: session.StateAwaitingResultName}
		return next, []Effect{Reply{Key: i18n.KeyResultAskName}}

	case IntentBroadcastAll:
		if role != identity.RoleOwner {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		next := &session.Session{OwnerID: p.ID, State: session.StateAwaitingBroadcastText}
		return next, []Effect{Reply{Key: i18n.KeyBroadcastPrompt}}

	case IntentListPhones:
		if role != identity.RoleOwner {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		return nil, []Effect{SendContactList{}}

	case IntentStats:
		if role != identity.RoleOwner {
			return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
		}
		return nil, []Effect{SendStats{}}

	default:
		// Unrecognized input while idle, including privileged text that
		// matches no known command.
		return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
	}
}

// stepSession advances an active workflow by one inbound message.
func (e *Engine) stepSession(p *store.Participant, sess *session.Session, msg Inbound) (*session.Session, []Effect) {
	switch sess.State {
	case session.StateRegisteringName:
		name := strings.TrimSpace(msg.Text)
		if len([]rune(name)) < minNameLen {
			return sess, []Effect{Reply{Key: i18n.KeyAskNameInvalid}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateRegisteringPhone,
			Data:    session.Payload{Name: name},
		}
		return next, []Effect{RequestContact{Key: i18n.KeyAskContact}}

	case session.StateRegisteringPhone:
		if msg.Contact == nil {
			return sess, []Effect{RequestContact{Key: i18n.KeyAskContact}}
		}
		if msg.Contact.OwnerID != p.ID {
			// Someone else's contact proves nothing; stay put.
			return sess, []Effect{Reply{Key: i18n.KeyNotYourContact}}
		}
		name := sess.Data.Name
		return nil, []Effect{
			CompleteRegistration{Name: name, Phone: msg.Contact.Phone},
			Reply{Key: i18n.KeyRegistrationDone},
			Notify{
				Peer: Peer{Kind: PeerSelfTopic, ID: p.ID},
				Key:  i18n.KeyStudentCard,
				Args: map[string]string{
					"name":     name,
					"username": p.Username,
					"phone":    msg.Contact.Phone,
				},
			},
		}

	case session.StateAwaitingContent:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingConfirm,
			Data: session.Payload{
				ContentKind: sess.Data.ContentKind,
				StagedChat:  msg.Ref.ChatID,
				StagedMsg:   msg.Ref.MessageID,
			},
		}
		return next, []Effect{Reply{Key: i18n.KeyConfirmContent}}

	case session.StateAwaitingConfirm:
		switch msg.Intent {
		case IntentConfirm:
			return nil, []Effect{
				PersistContent{Kind: sess.Data.ContentKind, Src: sess.StagedRef()},
				Reply{Key: i18n.KeyContentSaved},
			}
		case IntentCancel:
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		default:
			return sess, []Effect{Reply{Key: i18n.KeyConfirmContent}}
		}

	case session.StateAwaitingFeedbackText:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		}
		ownerPeer := Peer{Kind: PeerOwner}
		return nil, []Effect{
			Notify{
				Peer: ownerPeer,
				Key:  i18n.KeyFeedbackHeader,
				Args: map[string]string{"name": p.DisplayName, "id": p.ID},
			},
			Forward{Peer: ownerPeer, Src: msg.Ref},
			Reply{Key: i18n.KeyFeedbackSent},
		}

	case session.StateAwaitingGroupPost:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingGroupPostOK,
			Data:    session.Payload{StagedChat: msg.Ref.ChatID, StagedMsg: msg.Ref.MessageID},
		}
		return next, []Effect{Reply{Key: i18n.KeyConfirmGroupPost}}

	case session.StateAwaitingGroupPostOK:
		switch msg.Intent {
		case IntentConfirm:
			return nil, []Effect{
				GroupPost{Src: sess.StagedRef()},
				Reply{Key: i18n.KeyGroupPostSent},
			}
		case IntentCancel:
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		default:
			return sess, []Effect{Reply{Key: i18n.KeyConfirmGroupPost}}
		}

	case session.StateAwaitingBroadcastText:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingBroadcastOK,
			Data:    session.Payload{StagedChat: msg.Ref.ChatID, StagedMsg: msg.Ref.MessageID},
		}
		return next, []Effect{Reply{Key: i18n.KeyConfirmBroadcast}}

	case session.StateAwaitingBroadcastOK:
		switch msg.Intent {
		case IntentConfirm:
			return nil, []Effect{Broadcast{Src: sess.StagedRef()}}
		case IntentCancel:
			return nil, []Effect{Reply{Key: i18n.KeyCanceled}}
		default:
			return sess, []Effect{Reply{Key: i18n.KeyConfirmBroadcast}}
		}

	case session.StateAwaitingResultName:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyResultCanceled}}
		}
		name := strings.TrimSpace(msg.Text)
		if len([]rune(name)) < minNameLen {
			return sess, []Effect{Reply{Key: i18n.KeyAskNameInvalid}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingResultGrammar,
			Data:    session.Payload{Name: name},
		}
		return next, []Effect{Reply{Key: i18n.KeyResultAskGrammar}}

	case session.StateAwaitingResultGrammar:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyResultCanceled}}
		}
		v, ok := parsePercent(msg.Text)
		if !ok {
			return sess, []Effect{Reply{Key: i18n.KeyResultInvalid}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingResultWords,
			Data:    session.Payload{Name: sess.Data.Name, Grammar: &v},
		}
		return next, []Effect{Reply{Key: i18n.KeyResultAskWordlist}}

	case session.StateAwaitingResultWords:
		if msg.Intent == IntentCancel {
			return nil, []Effect{Reply{Key: i18n.KeyResultCanceled}}
		}
		v, ok := parsePercent(msg.Text)
		if !ok {
			return sess, []Effect{Reply{Key: i18n.KeyResultInvalid}}
		}
		next := &session.Session{
			OwnerID: p.ID,
			State:   session.StateAwaitingResultConfirm,
			Data:    session.Payload{Name: sess.Data.Name, Grammar: sess.Data.Grammar, Wordlist: &v},
		}
		return next, []Effect{Reply{Key: i18n.KeyResultConfirm, Args: resultArgs(next.Data)}}

	case session.StateAwaitingResultConfirm:
		switch msg.Intent {
		case IntentConfirm:
			return nil, []Effect{
				UpsertResult{Result: store.Result{
					Key:             NormalizeName(sess.Data.Name),
					DisplayName:     sess.Data.Name,
					GrammarPercent:  *sess.Data.Grammar,
					WordlistPercent: *sess.Data.Wordlist,
					UpdatedBy:       p.ID,
				}},
				Reply{Key: i18n.KeyResultSaved},
			}
		case IntentCancel:
			return nil, []Effect{Reply{Key: i18n.KeyResultCanceled}}
		default:
			return sess, []Effect{Reply{Key: i18n.KeyResultConfirm, Args: resultArgs(sess.Data)}}
		}

	case session.StateInDialog:
		peer := Peer{Kind: PeerSelfTopic, ID: p.ID}
		if msg.Intent == IntentFinish {
			return nil, []Effect{CloseDialog{Peer: peer}}
		}
		return sess, []Effect{Forward{Peer: peer, Src: msg.Ref}}

	default:
		// Unknown state tag, e.g. from a newer mirror after a downgrade.
		// Drop the session and nudge rather than wedging the participant.
		return nil, []Effect{Reply{Key: i18n.KeyMenuNudge}}
	}
}

// NormalizeName collapses whitespace and case so re-entered names hit the
// same result key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// parsePercent parses a percentage in [0,100], accepting either decimal comma
// or point and an optional trailing percent sign.
func parsePercent(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	t = strings.TrimSuffix(t, "%")
	t = strings.TrimSpace(t)
	t = strings.ReplaceAll(t, ",", ".")
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}

func resultArgs(data session.Payload) map[string]string {
	return map[string]string{
		"name":     data.Name,
		"grammar":  formatPercent(*data.Grammar),
		"wordlist": formatPercent(*data.Wordlist),
	}
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func contentKindFor(intent Intent) store.ContentKind {
	switch intent {
	case IntentSetVocabulary:
		return store.ContentVocabulary
	case IntentSetMaterials:
		return store.ContentMaterials
	default:
		return store.ContentHomework
	}
}
