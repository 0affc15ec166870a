// ABOUTME: Mock Messenger implementation for testing
// ABOUTME: Records calls and supports scripted failures per chat

package messenger

import (
	"context"
	"fmt"
	"sync"
)

// SentText records one SendText call.
type SentText struct {
	ChatID   string
	ThreadID string
	Text     string
}

// CopiedMessage records one CopyMessage call.
type CopiedMessage struct {
	DestChatID   string
	DestThreadID string
	Src          MessageRef
}

// Mock is an in-memory Messenger that records calls for assertions.
type Mock struct {
	mu       sync.Mutex
	Texts    []SentText
	Copies   []CopiedMessage
	Threads  map[string]string // threadID -> name
	Invoices []Invoice

	// FailChats makes sends to these chat IDs fail with ErrDeliveryFailed.
	FailChats map[string]bool

	// Memberships returned by GetMembershipStatus, keyed by userID.
	// Unknown users report MemberActive.
	Memberships map[string]MembershipStatus

	nextThread int
}

// NewMock creates a Mock messenger.
func NewMock() *Mock {
	return &Mock{
		Threads:     make(map[string]string),
		FailChats:   make(map[string]bool),
		Memberships: make(map[string]MembershipStatus),
	}
}

func (m *Mock) SendText(ctx context.Context, chatID, threadID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[chatID] {
		return ErrDeliveryFailed
	}
	m.Texts = append(m.Texts, SentText{ChatID: chatID, ThreadID: threadID, Text: text})
	return nil
}

func (m *Mock) CopyMessage(ctx context.Context, destChatID, destThreadID string, src MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[destChatID] {
		return ErrDeliveryFailed
	}
	m.Copies = append(m.Copies, CopiedMessage{DestChatID: destChatID, DestThreadID: destThreadID, Src: src})
	return nil
}

func (m *Mock) CreateThread(ctx context.Context, workspaceID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[workspaceID] {
		return "", ErrDeliveryFailed
	}
	m.nextThread++
	id := fmt.Sprintf("thread-%d", m.nextThread)
	m.Threads[id] = name
	return id, nil
}

func (m *Mock) RenameThread(ctx context.Context, workspaceID, threadID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Threads[threadID]; !ok {
		return ErrDeliveryFailed
	}
	m.Threads[threadID] = name
	return nil
}

func (m *Mock) GetMembershipStatus(ctx context.Context, groupID, userID string) (MembershipStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.Memberships[userID]; ok {
		return st, nil
	}
	return MemberActive, nil
}

func (m *Mock) RestrictMember(ctx context.Context, groupID, userID string, restricted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if restricted {
		m.Memberships[userID] = MemberRestricted
	} else {
		m.Memberships[userID] = MemberActive
	}
	return nil
}

func (m *Mock) BanMember(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Memberships[userID] = MemberBanned
	return nil
}

func (m *Mock) UnbanMember(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Memberships[userID] = MemberLeft
	return nil
}

func (m *Mock) RequestVerifiedContact(ctx context.Context, chatID, prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[chatID] {
		return ErrDeliveryFailed
	}
	m.Texts = append(m.Texts, SentText{ChatID: chatID, Text: prompt})
	return nil
}

func (m *Mock) CreatePaymentInvoice(ctx context.Context, chatID string, inv Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChats[chatID] {
		return ErrDeliveryFailed
	}
	m.Invoices = append(m.Invoices, inv)
	return nil
}

// TextsTo returns the texts sent to one chat.
func (m *Mock) TextsTo(chatID string) []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentText
	for _, t := range m.Texts {
		if t.ChatID == chatID {
			out = append(out, t)
		}
	}
	return out
}
