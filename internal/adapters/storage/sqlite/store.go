package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// Store keeps the deal archive and funnel hits in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dsn and migrates it.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. Call Migrate before use.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS deal_archive (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    deal_id TEXT NOT NULL,
    deal_title TEXT NOT NULL,
    turns TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deal_archive_user ON deal_archive(user_id, created_at);

CREATE TABLE IF NOT EXISTS funnel_hits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    state TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_funnel_hits_state ON funnel_hits(state);
CREATE INDEX IF NOT EXISTS idx_funnel_hits_session_state ON funnel_hits(session_id, state);
`)
	if err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

func (s *Store) AppendArchiveEntry(ctx context.Context, entry *domain.ArchiveEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.ArchiveEntryID(uuid.NewString())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	turns, err := json.Marshal(entry.Turns)
	if err != nil {
		return fmt.Errorf("sqlite AppendArchiveEntry: encode turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deal_archive(id, session_id, user_id, variant, deal_id, deal_title, turns, created_at) VALUES(?,?,?,?,?,?,?,?)`,
		string(entry.ID), string(entry.SessionID), string(entry.UserID), string(entry.Variant),
		entry.DealID, entry.DealTitle, string(turns), formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite AppendArchiveEntry: %w", err)
	}
	return nil
}

func (s *Store) ListArchiveByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ArchiveEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, variant, deal_id, deal_title, turns, created_at
FROM deal_archive WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListArchiveByUser: %w", err)
	}
	defer rows.Close()

	out := []*domain.ArchiveEntry{}
	for rows.Next() {
		var (
			e                            domain.ArchiveEntry
			id, sessionID, user, variant string
			turns, createdAt             string
		)
		if err := rows.Scan(&id, &sessionID, &user, &variant, &e.DealID, &e.DealTitle, &turns, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite ListArchiveByUser: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(turns), &e.Turns); err != nil {
			return nil, fmt.Errorf("sqlite ListArchiveByUser: decode turns: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite ListArchiveByUser: created_at: %w", err)
		}
		e.ID = domain.ArchiveEntryID(id)
		e.SessionID = domain.SessionID(sessionID)
		e.UserID = domain.UserID(user)
		e.Variant = domain.Variant(variant)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ListArchiveByUser: %w", err)
	}
	return out, nil
}

func (s *Store) Hit(ctx context.Context, sessionID domain.SessionID, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO funnel_hits(session_id, state, created_at) VALUES(?,?,?)`,
		string(sessionID), state, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("sqlite Hit: %w", err)
	}
	return nil
}

func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(DISTINCT session_id) FROM funnel_hits GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("sqlite Counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			state string
			cnt   int
		)
		if err := rows.Scan(&state, &cnt); err != nil {
			return nil, fmt.Errorf("sqlite Counts: scan: %w", err)
		}
		out[state] = cnt
	}
	return out, rows.Err()
}

// formatTime uses a fixed-width UTC layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
