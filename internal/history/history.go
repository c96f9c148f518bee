// Package history persists one record per engine run in a local SQLite
// database, using the pure-Go driver so the binary stays cgo-free.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	rules_file  TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	started_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Entry is one recorded engine run.
type Entry struct {
	RunID     string
	Target    string
	RulesFile string
	ExitCode  int
	Success   bool
	Duration  time.Duration
	StartedAt time.Time
}

// Store is a run-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one run entry.
func (s *Store) Record(e Entry) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, target, rules_file, exit_code, success, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Target, e.RulesFile, e.ExitCode, success,
		e.Duration.Milliseconds(), e.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// List returns up to limit entries, most recent first. A non-positive limit
// returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	query := `SELECT id, target, rules_file, exit_code, success, duration_ms, started_at
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success, durationMS int64
		var startedAt string
		if err := rows.Scan(&e.RunID, &e.Target, &e.RulesFile, &e.ExitCode,
			&success, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		e.Success = success == 1
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			e.StartedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
