// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides participant/link/session/content/result persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS participants (
			id            TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL,
			username      TEXT NOT NULL DEFAULT '',
			phone         TEXT NOT NULL DEFAULT '',
			language      TEXT NOT NULL DEFAULT 'ru',
			registered_at TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_participants_phone ON participants(phone);

		CREATE TABLE IF NOT EXISTS topic_links (
			student_id   TEXT PRIMARY KEY,
			thread_id    TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_topic_links_thread ON topic_links(thread_id);

		CREATE TABLE IF NOT EXISTS sessions (
			participant_id TEXT PRIMARY KEY,
			state          TEXT NOT NULL,
			payload        BLOB,
			updated_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS content_slots (
			kind       TEXT PRIMARY KEY,
			chat_id    TEXT NOT NULL,
			message_id TEXT NOT NULL,
			updated_by TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (kind IN ('homework', 'vocabulary', 'materials'))
		);

		CREATE TABLE IF NOT EXISTS results (
			key              TEXT PRIMARY KEY,
			display_name     TEXT NOT NULL,
			grammar_percent  REAL NOT NULL,
			wordlist_percent REAL NOT NULL,
			updated_by       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,

			CHECK (grammar_percent >= 0 AND grammar_percent <= 100),
			CHECK (wordlist_percent >= 0 AND wordlist_percent <= 100)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertParticipant inserts or refreshes a participant record.
// Phone and registered_at are only overwritten when the incoming value is set,
// so a profile refresh never un-registers someone.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, p *Participant) error {
	var registeredAt any
	if p.RegisteredAt != nil {
		registeredAt = p.RegisteredAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, username, phone, language, registered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name  = excluded.display_name,
			username      = excluded.username,
			phone         = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE participants.phone END,
			language      = excluded.language,
			registered_at = COALESCE(excluded.registered_at, participants.registered_at),
			updated_at    = excluded.updated_at
	`, p.ID, p.DisplayName, p.Username, p.Phone, p.Language, registeredAt,
		p.CreatedAt.UTC().Format(time.RFC3339), p.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant by ID.
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, username, phone, language, registered_at, created_at, updated_at
		FROM participants WHERE id = ?
	`, id)
	return scanParticipant(row)
}

// ListParticipants returns every participant ordered by display name.
func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]*Participant, error) {
	return s.queryParticipants(ctx, `
		SELECT id, display_name, username, phone, language, registered_at, created_at, updated_at
		FROM participants ORDER BY display_name
	`)
}

// ListRegistered returns participants that completed registration.
func (s *SQLiteStore) ListRegistered(ctx context.Context) ([]*Participant, error) {
	return s.queryParticipants(ctx, `
		SELECT id, display_name, username, phone, language, registered_at, created_at, updated_at
		FROM participants WHERE phone != '' ORDER BY display_name
	`)
}

func (s *SQLiteStore) queryParticipants(ctx context.Context, query string, args ...any) ([]*Participant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scan code
type scanner interface {
	Scan(dest ...any) error
}

func scanParticipant(sc scanner) (*Participant, error) {
	var p Participant
	var registeredAt sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(&p.ID, &p.DisplayName, &p.Username, &p.Phone, &p.Language,
		&registeredAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning participant: %w", err)
	}

	if registeredAt.Valid {
		t, err := time.Parse(time.RFC3339, registeredAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing registered_at: %w", err)
		}
		p.RegisteredAt = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// CreateTopicLink persists a new learner-to-thread mapping.
// Returns ErrDuplicateLink if the learner or thread is already mapped.
func (s *SQLiteStore) CreateTopicLink(ctx context.Context, link *TopicLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_links (student_id, thread_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, link.StudentID, link.ThreadID, link.DisplayName,
		link.CreatedAt.UTC().Format(time.RFC3339), link.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLink
		}
		return fmt.Errorf("creating topic link: %w", err)
	}
	return nil
}

// GetTopicLinkByStudent retrieves the link for a learner.
func (s *SQLiteStore) GetTopicLinkByStudent(ctx context.Context, studentID string) (*TopicLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, thread_id, display_name, created_at, updated_at
		FROM topic_links WHERE student_id = ?
	`, studentID)
	return scanTopicLink(row)
}

// GetTopicLinkByThread performs the reverse lookup from thread to learner.
func (s *SQLiteStore) GetTopicLinkByThread(ctx context.Context, threadID string) (*TopicLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, thread_id, display_name, created_at, updated_at
		FROM topic_links WHERE thread_id = ?
	`, threadID)
	return scanTopicLink(row)
}

// UpdateTopicLinkName records a learner's new display name on the link.
func (s *SQLiteStore) UpdateTopicLinkName(ctx context.Context, studentID, displayName string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE topic_links SET display_name = ?, updated_at = ? WHERE student_id = ?
	`, displayName, time.Now().UTC().Format(time.RFC3339), studentID)
	if err != nil {
		return fmt.Errorf("updating topic link name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTopicLinks returns all learner-to-thread mappings.
func (s *SQLiteStore) ListTopicLinks(ctx context.Context) ([]*TopicLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, thread_id, display_name, created_at, updated_at
		FROM topic_links ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying topic links: %w", err)
	}
	defer rows.Close()

	var out []*TopicLink
	for rows.Next() {
		link, err := scanTopicLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func scanTopicLink(sc scanner) (*TopicLink, error) {
	var link TopicLink
	var createdAt, updatedAt string

	err := sc.Scan(&link.StudentID, &link.ThreadID, &link.DisplayName, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning topic link: %w", err)
	}
	link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	link.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &link, nil
}

// SaveSession writes the durable session mirror for a participant.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (participant_id, state, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			state      = excluded.state,
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`, rec.ParticipantID, rec.State, rec.Payload, rec.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession retrieves the durable session mirror for a participant.
func (s *SQLiteStore) GetSession(ctx context.Context, participantID string) (*SessionRecord, error) {
	var rec SessionRecord
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT participant_id, state, payload, updated_at FROM sessions WHERE participant_id = ?
	`, participantID).Scan(&rec.ParticipantID, &rec.State, &rec.Payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// DeleteSession removes the durable session mirror. Deleting a session that
// does not exist is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, participantID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE participant_id = ?`, participantID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListSessions returns all durable session mirrors, used on startup recovery.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id, state, payload, updated_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var updatedAt string
		if err := rows.Scan(&rec.ParticipantID, &rec.State, &rec.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SetContentSlot replaces the slot for a content kind wholesale.
func (s *SQLiteStore) SetContentSlot(ctx context.Context, slot *ContentSlot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_slots (kind, chat_id, message_id, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			chat_id    = excluded.chat_id,
			message_id = excluded.message_id,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`, string(slot.Kind), slot.ChatID, slot.MessageID, slot.UpdatedBy,
		slot.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting content slot: %w", err)
	}
	return nil
}

// GetContentSlot retrieves the last published slot for a kind.
// Returns ErrNotFound before the first write.
func (s *SQLiteStore) GetContentSlot(ctx context.Context, kind ContentKind) (*ContentSlot, error) {
	var slot ContentSlot
	var k, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, chat_id, message_id, updated_by, updated_at FROM content_slots WHERE kind = ?
	`, string(kind)).Scan(&k, &slot.ChatID, &slot.MessageID, &slot.UpdatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning content slot: %w", err)
	}
	slot.Kind = ContentKind(k)
	slot.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &slot, nil
}

// UpsertResult inserts or overwrites a result keyed by normalized name.
func (s *SQLiteStore) UpsertResult(ctx context.Context, r *Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (key, display_name, grammar_percent, wordlist_percent, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			display_name     = excluded.display_name,
			grammar_percent  = excluded.grammar_percent,
			wordlist_percent = excluded.wordlist_percent,
			updated_by       = excluded.updated_by,
			updated_at       = excluded.updated_at
	`, r.Key, r.DisplayName, r.GrammarPercent, r.WordlistPercent, r.UpdatedBy,
		r.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting result: %w", err)
	}
	return nil
}

// GetResult retrieves a result by normalized name key.
func (s *SQLiteStore) GetResult(ctx context.Context, key string) (*Result, error) {
	var r Result
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT key, display_name, grammar_percent, wordlist_percent, updated_by, updated_at
		FROM results WHERE key = ?
	`, key).Scan(&r.Key, &r.DisplayName, &r.GrammarPercent, &r.WordlistPercent, &r.UpdatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning result: %w", err)
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// ListResults returns all results ordered by display name.
func (s *SQLiteStore) ListResults(ctx context.Context) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, display_name, grammar_percent, wordlist_percent, updated_by, updated_at
		FROM results ORDER BY display_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var r Result
		var updatedAt string
		if err := rows.Scan(&r.Key, &r.DisplayName, &r.GrammarPercent, &r.WordlistPercent, &r.UpdatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether the error is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces constraint failures in the error string
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
