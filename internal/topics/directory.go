// ABOUTME: Topic Directory mapping learners to instructor-workspace discussion threads
// ABOUTME: Cache-aside over the durable store; thread creation is serialized per learner

package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devzone/class-relay/internal/store"
)

// ErrNoThread is returned when a thread has no mapped learner.
var ErrNoThread = errors.New("no learner mapped to thread")

// ThreadCreator is the slice of the Messenger the directory needs.
type ThreadCreator interface {
	CreateThread(ctx context.Context, workspaceID, name string) (string, error)
	RenameThread(ctx context.Context, workspaceID, threadID, name string) error
}

// Directory maintains the bidirectional learner-to-thread mapping.
// Lookups are served from memory; the durable store is the fallback and is
// written best-effort.
type Directory struct {
	store       store.Store
	threads     ThreadCreator
	workspaceID string
	logger      *slog.Logger

	mu        sync.RWMutex
	byStudent map[string]*store.TopicLink
	byThread  map[string]string // threadID -> studentID

	// creating serializes first-creation per learner so concurrent calls
	// cannot race a duplicate thread into existence.
	creatingMu sync.Mutex
	creating   map[string]*sync.Mutex
}

// New creates a topic directory for the given instructor workspace chat.
func New(st store.Store, threads ThreadCreator, workspaceID string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:       st,
		threads:     threads,
		workspaceID: workspaceID,
		logger:      logger.With("component", "topics"),
		byStudent:   make(map[string]*store.TopicLink),
		byThread:    make(map[string]string),
		creating:    make(map[string]*sync.Mutex),
	}
}

// EnsureThread returns the thread for a learner, creating it on first call.
// The existing thread is renamed when the learner's display name changed.
// Idempotent under concurrent calls for the same learner.
func (d *Directory) EnsureThread(ctx context.Context, learnerID, preferredName string) (string, error) {
	if link := d.cached(learnerID); link != nil {
		return d.maybeRename(ctx, link, preferredName)
	}

	// Serialize per learner: the second concurrent caller waits here and then
	// finds the link the first one created.
	lock := d.learnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	if link := d.cached(learnerID); link != nil {
		return d.maybeRename(ctx, link, preferredName)
	}

	// Cache miss: consult the durable store before creating anything.
	link, err := d.store.GetTopicLinkByStudent(ctx, learnerID)
	if err == nil {
		d.populate(link)
		return d.maybeRename(ctx, link, preferredName)
	}
	if !errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("topic link read failed, treating as absent", "learner_id", learnerID, "error", err)
	}

	threadID, err := d.threads.CreateThread(ctx, d.workspaceID, preferredName)
	if err != nil {
		return "", fmt.Errorf("creating thread for %s: %w", learnerID, err)
	}

	now := time.Now()
	link = &store.TopicLink{
		StudentID:   learnerID,
		ThreadID:    threadID,
		DisplayName: preferredName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.populate(link)

	if err := d.store.CreateTopicLink(ctx, link); err != nil {
		// Memory stays correct for the process lifetime.
		d.logger.Warn("topic link persist failed, continuing in memory",
			"learner_id", learnerID, "thread_id", threadID, "error", err)
	}

	d.logger.Info("thread created", "learner_id", learnerID, "thread_id", threadID)
	return threadID, nil
}

// ResolveLearnerByThread returns the learner owning a thread.
func (d *Directory) ResolveLearnerByThread(ctx context.Context, threadID string) (string, error) {
	d.mu.RLock()
	studentID, ok := d.byThread[threadID]
	d.mu.RUnlock()
	if ok {
		return studentID, nil
	}

	link, err := d.store.GetTopicLinkByThread(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoThread
	}
	if err != nil {
		return "", fmt.Errorf("resolving thread %s: %w", threadID, err)
	}
	d.populate(link)
	return link.StudentID, nil
}

// Lookup returns the thread for a learner without creating one.
func (d *Directory) Lookup(ctx context.Context, learnerID string) (string, bool) {
	if link := d.cached(learnerID); link != nil {
		return link.ThreadID, true
	}
	link, err := d.store.GetTopicLinkByStudent(ctx, learnerID)
	if err != nil {
		return "", false
	}
	d.populate(link)
	return link.ThreadID, true
}

// Count returns the number of known topic links.
func (d *Directory) Count(ctx context.Context) int {
	links, err := d.store.ListTopicLinks(ctx)
	if err != nil {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return len(d.byStudent)
	}
	// Merge in memory-only links the store may have missed.
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		seen[l.StudentID] = true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id := range d.byStudent {
		seen[id] = true
	}
	return len(seen)
}

// WorkspaceID returns the instructor workspace chat the threads live in.
func (d *Directory) WorkspaceID() string {
	return d.workspaceID
}

func (d *Directory) cached(learnerID string) *store.TopicLink {
	d.mu.RLock()
	defer d.mu.RUnlock()

	link, ok := d.byStudent[learnerID]
	if !ok {
		return nil
	}
	cp := *link
	return &cp
}

func (d *Directory) populate(link *store.TopicLink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *link
	d.byStudent[cp.StudentID] = &cp
	d.byThread[cp.ThreadID] = cp.StudentID
}

// maybeRename renames the underlying thread when the display name changed.
// Rename failures are logged; the mapping itself stays valid.
func (d *Directory) maybeRename(ctx context.Context, link *store.TopicLink, preferredName string) (string, error) {
	if preferredName == "" || preferredName == link.DisplayName {
		return link.ThreadID, nil
	}

	if err := d.threads.RenameThread(ctx, d.workspaceID, link.ThreadID, preferredName); err != nil {
		d.logger.Warn("thread rename failed", "thread_id", link.ThreadID, "error", err)
		return link.ThreadID, nil
	}

	link.DisplayName = preferredName
	d.populate(link)
	if err := d.store.UpdateTopicLinkName(ctx, link.StudentID, preferredName); err != nil {
		d.logger.Warn("topic link name persist failed", "learner_id", link.StudentID, "error", err)
	}
	return link.ThreadID, nil
}

func (d *Directory) learnerLock(learnerID string) *sync.Mutex {
	d.creatingMu.Lock()
	defer d.creatingMu.Unlock()

	lock, ok := d.creating[learnerID]
	if !ok {
		lock = &sync.Mutex{}
		d.creating[learnerID] = lock
	}
	return lock
}
