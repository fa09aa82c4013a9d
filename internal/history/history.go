// Package history persists finished transcripts in SQLite, encrypted at
// rest.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voxd/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    created_ns  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    chars       INTEGER NOT NULL,
    strategy    TEXT NOT NULL,
    box         BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_ns);
`

// Entry is one stored transcript.
type Entry struct {
	ID        int64
	CreatedAt time.Time
	Duration  time.Duration
	Chars     int
	Strategy  string
	Text      string
}

// Stats summarizes the store.
type Stats struct {
	Count      int64
	TotalChars int64
	Oldest     time.Time
	Newest     time.Time
}

// Store is the encrypted transcript database.
type Store struct {
	db  *sql.DB
	box *boxCipher
}

// Open opens or creates the transcript database at path. The encryption
// secret lives in secretPath and is generated on first use.
func Open(path, secretPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	secret, err := loadOrCreateSecret(secretPath)
	if err != nil {
		return nil, err
	}
	box, err := cipherFromSecret(secret)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, box: box}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores one transcript and returns its ID.
func (s *Store) Save(ctx context.Context, e Entry) (int64, error) {
	box, err := s.box.seal([]byte(e.Text))
	if err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (created_ns, duration_ms, chars, strategy, box)
		VALUES (?, ?, ?, ?, ?)`,
		e.CreatedAt.UnixNano(), e.Duration.Milliseconds(), len(e.Text), e.Strategy, box,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// SaveTranscript implements session.Historian.
func (s *Store) SaveTranscript(ctx context.Context, t session.Transcript) error {
	_, err := s.Save(ctx, Entry{
		CreatedAt: t.StartedAt,
		Duration:  t.Duration,
		Strategy:  t.Strategy,
		Text:      t.Text,
	})
	return err
}

// Get returns a single transcript by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_ns, duration_ms, chars, strategy, box
		FROM transcripts WHERE id = ?`, id)
	entry, err := s.scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transcript %d not found", id)
	}
	return entry, err
}

// List returns the most recent transcripts, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_ns, duration_ms, chars, strategy, box
		FROM transcripts ORDER BY created_ns DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

// Search returns transcripts whose text contains the query, newest first.
// The text is encrypted at rest; matching happens after decryption, bounded
// by limit hits.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_ns, duration_ms, chars, strategy, box
		FROM transcripts ORDER BY created_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	var matches []Entry
	for rows.Next() {
		entry, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(entry.Text), needle) {
			matches = append(matches, *entry)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, rows.Err()
}

// PruneOlderThan deletes transcripts created before the cutoff and returns
// how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UnixNano()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE created_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	return result.RowsAffected()
}

// PruneToCount keeps only the newest n transcripts.
func (s *Store) PruneToCount(ctx context.Context, n int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM transcripts WHERE id NOT IN (
			SELECT id FROM transcripts ORDER BY created_ns DESC LIMIT ?
		)`, n)
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns store-level aggregates without decrypting anything.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(chars), 0), MIN(created_ns), MAX(created_ns)
		FROM transcripts`).Scan(&st.Count, &st.TotalChars, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64)
	}
	return st, nil
}

// Ping verifies the database is reachable. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var createdNs, durationMs int64
	var box []byte
	if err := row.Scan(&e.ID, &createdNs, &durationMs, &e.Chars, &e.Strategy, &box); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdNs)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	text, err := s.box.open(box)
	if err != nil {
		return nil, fmt.Errorf("transcript %d: %w", e.ID, err)
	}
	e.Text = string(text)
	return &e, nil
}

func (s *Store) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}
