// ABOUTME: Messenger capability interface consumed by the relay core
// ABOUTME: Abstracts the chat transport (send, copy, threads, membership, payments)

package messenger

import (
	"context"
	"errors"
)

// ErrDeliveryFailed is returned when the transport rejects a send
// (blocked sender, deactivated account, network failure).
var ErrDeliveryFailed = errors.New("delivery failed")

// MembershipStatus is the transport's view of a user's group membership.
type MembershipStatus string

const (
	MemberActive     MembershipStatus = "member"
	MemberAdmin      MembershipStatus = "administrator"
	MemberCreator    MembershipStatus = "creator"
	MemberRestricted MembershipStatus = "restricted"
	MemberLeft       MembershipStatus = "left"
	MemberBanned     MembershipStatus = "banned"
)

// Active reports whether the status grants group access.
func (s MembershipStatus) Active() bool {
	return s == MemberActive || s == MemberAdmin || s == MemberCreator
}

// MessageRef identifies one message on the transport so it can be copied
// verbatim to another chat.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// Invoice describes a payment request handed to the transport.
type Invoice struct {
	Title       string
	Description string
	Label       string
	Amount      int64
	PayloadID   string
}

// Messenger is the chat transport capability consumed by the relay core.
// Implementations are expected to apply their own bounded deadlines.
type Messenger interface {
	// SendText delivers a text message to a chat. The threadID is empty for
	// direct chats and set when addressing a workspace discussion thread.
	SendText(ctx context.Context, chatID, threadID, text string) error

	// CopyMessage re-posts an existing message into the destination chat with
	// media and text preserved verbatim.
	CopyMessage(ctx context.Context, destChatID, destThreadID string, src MessageRef) error

	// CreateThread creates a named discussion thread in the workspace chat.
	CreateThread(ctx context.Context, workspaceID, name string) (threadID string, err error)

	// RenameThread renames an existing discussion thread.
	RenameThread(ctx context.Context, workspaceID, threadID, name string) error

	// GetMembershipStatus reports a user's membership in a group chat.
	GetMembershipStatus(ctx context.Context, groupID, userID string) (MembershipStatus, error)

	// RestrictMember limits a user's ability to post in the group.
	RestrictMember(ctx context.Context, groupID, userID string, restricted bool) error

	// BanMember removes a user from the group and blocks re-entry.
	BanMember(ctx context.Context, groupID, userID string) error

	// UnbanMember lifts a ban.
	UnbanMember(ctx context.Context, groupID, userID string) error

	// RequestVerifiedContact asks the transport to present its native
	// share-contact control in the given chat.
	RequestVerifiedContact(ctx context.Context, chatID, prompt string) error

	// CreatePaymentInvoice sends a payment request into a chat.
	CreatePaymentInvoice(ctx context.Context, chatID string, inv Invoice) error
}
