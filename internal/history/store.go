// Package history persists a record per sync cycle so operators can inspect
// recent daemon activity without trawling logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed (or aborted) sync cycle.
type Record struct {
	ID        int64     `json:"id"`
	CycleID   string    `json:"cycle_id"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Conflicts string    `json:"conflicts,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
}

// Store records cycles in SQLite. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates the store and its schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		conflicts TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores one cycle record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, trigger_source, outcome, detail, conflicts, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleID, rec.Trigger, rec.Outcome, rec.Detail, rec.Conflicts,
		rec.StartedAt.UnixMilli(), rec.Duration)
	if err != nil {
		return fmt.Errorf("append cycle record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, trigger_source, outcome, detail, conflicts, started_at, duration_ms
		 FROM cycles ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var started int64
		var detail, conflicts sql.NullString
		if err := rows.Scan(&rec.ID, &rec.CycleID, &rec.Trigger, &rec.Outcome,
			&detail, &conflicts, &started, &rec.Duration); err != nil {
			return nil, fmt.Errorf("scan cycle record: %w", err)
		}
		rec.Detail = detail.String
		rec.Conflicts = conflicts.String
		rec.StartedAt = time.UnixMilli(started).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// JoinConflicts flattens conflict path lists for storage.
func JoinConflicts(paths []string) string { return strings.Join(paths, "\n") }
