// Package store persists a ledger of chat completions to SQLite. It is
// best-effort observability: a nil *Store is valid and records nothing,
// and write failures are logged rather than propagated to requests.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	id          TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	created     INTEGER NOT NULL,
	streamed    INTEGER NOT NULL,
	prompt      TEXT NOT NULL,
	completion  TEXT NOT NULL,
	finish      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS completions_model_created ON completions (model, created);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent inserts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// NextID mints a completion id in the OpenAI "chatcmpl-" form. It does
// not require an open store.
func NextID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	return "chatcmpl-" + hex.EncodeToString(b[:])
}

// Record describes one finished completion.
type Record struct {
	ID         string
	Model      string
	Created    time.Time
	Streamed   bool
	Prompt     string
	Completion string
	Finish     string
	Duration   time.Duration
}

// Save inserts one completion record. Failures are logged, not returned.
func (s *Store) Save(r Record) {
	if s == nil {
		return
	}
	_, err := s.db.Exec(
		`INSERT INTO completions (id, model, created, streamed, prompt, completion, finish, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Model, r.Created.Unix(), r.Streamed, r.Prompt, r.Completion, r.Finish,
		r.Duration.Milliseconds(),
	)
	if err != nil {
		log.Warn().Err(err).Str("id", r.ID).Msg("failed to persist completion record")
	}
}

// Recent returns up to limit completion records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT id, model, created, streamed, prompt, completion, finish, duration_ms
		 FROM completions ORDER BY created DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		var durMS int64
		if err := rows.Scan(&r.ID, &r.Model, &created, &r.Streamed, &r.Prompt, &r.Completion, &r.Finish, &durMS); err != nil {
			return nil, err
		}
		r.Created = time.Unix(created, 0)
		r.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
