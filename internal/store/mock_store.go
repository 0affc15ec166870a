// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.RWMutex
	participants map[string]*Participant  // keyed by participant ID
	links        map[string]*TopicLink    // keyed by student ID
	linksByThrd  map[string]string        // thread ID -> student ID
	sessions     map[string]*SessionRecord
	slots        map[ContentKind]*ContentSlot
	results      map[string]*Result // keyed by normalized name

	// FailWrites makes every write return the given error, for degraded-mode tests.
	FailWrites error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		participants: make(map[string]*Participant),
		links:        make(map[string]*TopicLink),
		linksByThrd:  make(map[string]string),
		sessions:     make(map[string]*SessionRecord),
		slots:        make(map[ContentKind]*ContentSlot),
		results:      make(map[string]*Result),
	}
}

// UpsertParticipant stores or refreshes a participant.
func (m *MockStore) UpsertParticipant(ctx context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	cp := *p
	if existing, ok := m.participants[p.ID]; ok {
		if cp.Phone == "" {
			cp.Phone = existing.Phone
		}
		if cp.RegisteredAt == nil {
			cp.RegisteredAt = existing.RegisteredAt
		}
		cp.CreatedAt = existing.CreatedAt
	}
	m.participants[cp.ID] = &cp
	return nil
}

// GetParticipant retrieves a participant by ID.
func (m *MockStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListParticipants returns all participants sorted by display name.
func (m *MockStore) ListParticipants(ctx context.Context) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Participant
	for _, p := range m.participants {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// ListRegistered returns participants with a verified phone.
func (m *MockStore) ListRegistered(ctx context.Context) ([]*Participant, error) {
	all, _ := m.ListParticipants(ctx)
	var out []*Participant
	for _, p := range all {
		if p.Registered() {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateTopicLink stores a new link, enforcing uniqueness both ways.
func (m *MockStore) CreateTopicLink(ctx context.Context, link *TopicLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	if _, ok := m.links[link.StudentID]; ok {
		return ErrDuplicateLink
	}
	if _, ok := m.linksByThrd[link.ThreadID]; ok {
		return ErrDuplicateLink
	}
	cp := *link
	m.links[cp.StudentID] = &cp
	m.linksByThrd[cp.ThreadID] = cp.StudentID
	return nil
}

// GetTopicLinkByStudent retrieves the link for a learner.
func (m *MockStore) GetTopicLinkByStudent(ctx context.Context, studentID string) (*TopicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[studentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *link
	return &cp, nil
}

// GetTopicLinkByThread retrieves the link owning a thread.
func (m *MockStore) GetTopicLinkByThread(ctx context.Context, threadID string) (*TopicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	studentID, ok := m.linksByThrd[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.links[studentID]
	return &cp, nil
}

// UpdateTopicLinkName updates the cached display name on a link.
func (m *MockStore) UpdateTopicLinkName(ctx context.Context, studentID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	link, ok := m.links[studentID]
	if !ok {
		return ErrNotFound
	}
	link.DisplayName = displayName
	return nil
}

// ListTopicLinks returns all links.
func (m *MockStore) ListTopicLinks(ctx context.Context) ([]*TopicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TopicLink
	for _, link := range m.links {
		cp := *link
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// SaveSession stores a session mirror.
func (m *MockStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	cp := *rec
	m.sessions[cp.ParticipantID] = &cp
	return nil
}

// GetSession retrieves a session mirror.
func (m *MockStore) GetSession(ctx context.Context, participantID string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// DeleteSession removes a session mirror.
func (m *MockStore) DeleteSession(ctx context.Context, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	delete(m.sessions, participantID)
	return nil
}

// ListSessions returns all session mirrors.
func (m *MockStore) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SessionRecord
	for _, rec := range m.sessions {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// SetContentSlot replaces a content slot.
func (m *MockStore) SetContentSlot(ctx context.Context, slot *ContentSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	cp := *slot
	m.slots[cp.Kind] = &cp
	return nil
}

// GetContentSlot retrieves a content slot, ErrNotFound before first write.
func (m *MockStore) GetContentSlot(ctx context.Context, kind ContentKind) (*ContentSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot, ok := m.slots[kind]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *slot
	return &cp, nil
}

// UpsertResult stores or overwrites a result.
func (m *MockStore) UpsertResult(ctx context.Context, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}

	cp := *r
	m.results[cp.Key] = &cp
	return nil
}

// GetResult retrieves a result by key.
func (m *MockStore) GetResult(ctx context.Context, key string) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListResults returns all results sorted by display name.
func (m *MockStore) ListResults(ctx context.Context) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Result
	for _, r := range m.results {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
