// ABOUTME: Side-effect values emitted by the conversation engine
// ABOUTME: Executed in order by the service layer; the engine itself stays pure

package engine

import (
	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/store"
)

// PeerKind selects how a peer reference is resolved by the relay router.
type PeerKind int

const (
	// PeerSelfTopic is the sender's own discussion thread in the instructor
	// workspace, created lazily on first use.
	PeerSelfTopic PeerKind = iota
	// PeerTopicLearner is the learner owning the thread named by ID.
	PeerTopicLearner
	// PeerOwner is the owner's direct chat.
	PeerOwner
	// PeerGroup is the shared group chat.
	PeerGroup
)

// Peer references the other end of a forward or dialog.
type Peer struct {
	Kind PeerKind
	ID   string // sender ID for PeerSelfTopic, thread ID for PeerTopicLearner
}

// Effect is one ordered side effect of a transition.
type Effect interface{ effect() }

// Reply sends a localized notice to the sender.
type Reply struct {
	Key  string
	Args map[string]string
}

// RequestContact presents the transport's share-contact control to the sender.
type RequestContact struct {
	Key string
}

// Forward copies the original message verbatim to the peer.
type Forward struct {
	Peer Peer
	Src  messenger.MessageRef
}

// Notify sends a localized notice to the peer (not the sender).
type Notify struct {
	Peer Peer
	Key  string
	Args map[string]string
}

// PersistContent replaces a content slot with the staged source message.
type PersistContent struct {
	Kind store.ContentKind
	Src  messenger.MessageRef
}

// SendContent delivers the current content slot of a kind to the sender.
type SendContent struct {
	Kind store.ContentKind
}

// UpsertResult stores a confirmed result record.
type UpsertResult struct {
	Result store.Result
}

// SendResults delivers the result list to the sender.
type SendResults struct{}

// Broadcast fans the staged message out to the full learner roster.
type Broadcast struct {
	Src messenger.MessageRef
}

// GroupPost publishes the staged message to the group chat.
type GroupPost struct {
	Src messenger.MessageRef
}

// CloseDialog tears down the dialog with the peer; the router clears both
// sessions and notifies each end.
type CloseDialog struct {
	Peer Peer
}

// CompleteRegistration finalizes the sender's registration with a verified phone.
type CompleteRegistration struct {
	Name  string
	Phone string
}

// SetLanguage switches the sender's interface language.
type SetLanguage struct {
	Lang string
}

// SendInvoice sends the support-project payment invoice to the sender.
type SendInvoice struct{}

// SendContactList delivers the registered-learner contact list to the sender.
type SendContactList struct{}

// SendStats delivers roster statistics to the sender.
type SendStats struct{}

func (Reply) effect()                {}
func (RequestContact) effect()       {}
func (Forward) effect()              {}
func (Notify) effect()               {}
func (PersistContent) effect()       {}
func (SendContent) effect()          {}
func (UpsertResult) effect()         {}
func (SendResults) effect()          {}
func (Broadcast) effect()            {}
func (GroupPost) effect()            {}
func (CloseDialog) effect()          {}
func (CompleteRegistration) effect() {}
func (SetLanguage) effect()          {}
func (SendInvoice) effect()          {}
func (SendContactList) effect()      {}
func (SendStats) effect()            {}
