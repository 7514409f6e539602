package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the append-only audit journal. It records what the relay did; it is
// never read back into conversation history.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewStore opens (or creates) the SQLite journal at the given path
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive across statements
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id          TEXT PRIMARY KEY,
			platform    TEXT NOT NULL,
			channel_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			identity    TEXT NOT NULL,
			state       TEXT NOT NULL,
			reply       TEXT,
			error       TEXT,
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS instruction_changes (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_key       TEXT NOT NULL,
			actor_platform  TEXT NOT NULL,
			actor_id        TEXT NOT NULL,
			style           TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
		CREATE INDEX IF NOT EXISTS idx_events_identity ON events(identity);
		CREATE INDEX IF NOT EXISTS idx_instruction_changes_scope ON instruction_changes(scope_key);
	`)
	return err
}

// RecordEvent appends an event row. ID and CreatedAt are filled in when empty.
func (s *Store) RecordEvent(rec EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, platform, channel_id, user_id, identity, state, reply, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Platform, rec.ChannelID, rec.UserID, rec.Identity, rec.State, rec.Reply, rec.Error,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecordInstructionChange appends an accepted style override.
func (s *Store) RecordInstructionChange(scopeKey, actorPlatform, actorID, style string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO instruction_changes (scope_key, actor_platform, actor_id, style, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, scopeKey, actorPlatform, actorID, style, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record instruction change: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first
func (s *Store) RecentEvents(limit int) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, platform, channel_id, user_id, identity, state, reply, error, created_at
		FROM events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var reply, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Platform, &rec.ChannelID, &rec.UserID, &rec.Identity,
			&rec.State, &reply, &errText, &createdAt); err != nil {
			return nil, err
		}
		rec.Reply = reply.String
		rec.Error = errText.String
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InstructionChanges returns up to limit style overrides, newest first
func (s *Store) InstructionChanges(limit int) ([]InstructionChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, scope_key, actor_platform, actor_id, style, created_at
		FROM instruction_changes
		ORDER BY id DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstructionChange
	for rows.Next() {
		var c InstructionChange
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ScopeKey, &c.ActorPlatform, &c.ActorID, &c.Style, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
