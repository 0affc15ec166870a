// ABOUTME: Store interface and data types for class-relay persistence
// ABOUTME: Defines Participant, TopicLink, ContentSlot, Result and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateLink is returned when a topic link already exists for a learner or thread
var ErrDuplicateLink = errors.New("topic link already exists")

// Participant is the durable record for anyone who has ever contacted the bot.
// Role is not stored here; it is derived from configured identifiers.
type Participant struct {
	ID           string
	DisplayName  string
	Username     string
	Phone        string // non-empty phone marks a completed registration
	Language     string // "ru" or "en"
	RegisteredAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registered reports whether the participant completed contact verification.
func (p *Participant) Registered() bool {
	return p.Phone != ""
}

// TopicLink maps a learner to their dedicated discussion thread in the
// instructor workspace. Both directions must resolve.
type TopicLink struct {
	StudentID   string
	ThreadID    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentKind enumerates the published content slots.
type ContentKind string

const (
	ContentHomework   ContentKind = "homework"
	ContentVocabulary ContentKind = "vocabulary"
	ContentMaterials  ContentKind = "materials"
)

// ContentSlot holds a pointer to the last published instance of one content
// kind. The slot is replaced wholesale on update; no history is kept.
type ContentSlot struct {
	Kind      ContentKind
	ChatID    string // origin chat of the source message
	MessageID string // message to copy when a learner asks for the content
	UpdatedBy string
	UpdatedAt time.Time
}

// Result is one learner's scored outcome, upserted by normalized name.
type Result struct {
	Key             string // normalized learner name, unique
	DisplayName     string
	GrammarPercent  float64
	WordlistPercent float64
	UpdatedBy       string
	UpdatedAt       time.Time
}

// SessionRecord is the durable mirror of a conversation session, used for
// crash recovery. The session package owns the in-memory representation.
type SessionRecord struct {
	ParticipantID string
	State         string
	Payload       []byte // JSON-encoded state payload
	UpdatedAt     time.Time
}

// Store defines the durable persistence surface for class-relay.
type Store interface {
	// Participants
	UpsertParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, id string) (*Participant, error)
	ListParticipants(ctx context.Context) ([]*Participant, error)
	ListRegistered(ctx context.Context) ([]*Participant, error)

	// Topic links
	CreateTopicLink(ctx context.Context, link *TopicLink) error
	GetTopicLinkByStudent(ctx context.Context, studentID string) (*TopicLink, error)
	GetTopicLinkByThread(ctx context.Context, threadID string) (*TopicLink, error)
	UpdateTopicLinkName(ctx context.Context, studentID, displayName string) error
	ListTopicLinks(ctx context.Context) ([]*TopicLink, error)

	// Sessions (durable mirror; memory is the source of truth)
	SaveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, participantID string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, participantID string) error
	ListSessions(ctx context.Context) ([]*SessionRecord, error)

	// Content slots
	SetContentSlot(ctx context.Context, slot *ContentSlot) error
	GetContentSlot(ctx context.Context, kind ContentKind) (*ContentSlot, error)

	// Results
	UpsertResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, key string) (*Result, error)
	ListResults(ctx context.Context) ([]*Result, error)

	// Close releases any resources held by the store
	Close() error
}
