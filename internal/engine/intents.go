// ABOUTME: Language-independent intents and the inbound message shape
// ABOUTME: The presentation layer maps localized button labels to these

package engine

import "github.com/devzone/class-relay/internal/messenger"

// Intent is a stable, language-independent command classification.
// The engine never compares localized strings; the presentation layer
// translates button labels and commands into intents before handoff.
type Intent int

const (
	IntentNone Intent = iota // free text or media, no recognized command
	IntentStart
	IntentShowHomework
	IntentShowVocabulary
	IntentShowMaterials
	IntentShowResults
	IntentSetHomework
	IntentSetVocabulary
	IntentSetMaterials
	IntentPostToGroup
	IntentBroadcastAll
	IntentFeedback
	IntentTeacherChat
	IntentNewResult
	IntentListPhones
	IntentStats
	IntentGift
	IntentSetLanguage
	IntentConfirm
	IntentCancel
	IntentFinish
)

// Contact is a verified contact shared through the transport's native control.
type Contact struct {
	OwnerID string // transport user the contact belongs to
	Phone   string
}

// Inbound is one normalized incoming message.
type Inbound struct {
	Intent   Intent
	Text     string
	Ref      messenger.MessageRef // source chat and message id, for verbatim copies
	ThreadID string               // set when the message arrived inside a workspace thread
	Contact  *Contact             // set when the message is a shared contact
	Lang     string               // language choice for IntentSetLanguage
}
