// Package history keeps a persistent audit log of dispatched commands in
// SQLite, using the pure-Go driver so the binary stays CGO-free.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"motorcortex/internal/engine"
	"motorcortex/internal/logging"
)

const dispatchesTable = `
CREATE TABLE IF NOT EXISTS dispatches (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	text TEXT NOT NULL,
	status TEXT NOT NULL,
	detail_json TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at);
`

// Entry is one recorded dispatch.
type Entry struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Text      string         `json:"text"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// Store logs command outcomes. It satisfies the engine's Recorder interface
// so the pipeline records every result without knowing about SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ engine.Recorder = (*Store)(nil)

// New opens (or creates) the dispatch log at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(dispatchesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create dispatches table: %w", err)
	}

	logging.History("dispatch log open at %s", path)
	return &Store{db: db}, nil
}

// Record inserts one dispatch outcome. Failures are logged, never
// propagated; the audit log must not break the pipeline.
func (s *Store) Record(source, text string, result engine.Result) {
	detail, err := json.Marshal(result)
	if err != nil {
		logging.HistoryError("marshal result: %v", err)
		detail = []byte("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO dispatches (id, source, text, status, detail_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), source, text, result.Status, string(detail),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		logging.HistoryError("insert dispatch: %v", err)
	}
}

// Recent returns the latest n dispatches, newest first. n <= 0 uses 20.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, source, text, status, detail_json, created_at
		 FROM dispatches ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Source, &entry.Text, &entry.Status, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &entry.Detail); err != nil {
				entry.Detail = nil
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded dispatches.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM dispatches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
