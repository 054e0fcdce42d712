// Package store persists workflow run events to SQLite, giving runs a
// durable audit trail that outlives the process.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/demml/potatohead-go/workflow"
)

// Store persists task events.
type Store struct {
	db *sql.DB
}

// Open creates or opens the event database at path, running migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL plus a busy timeout so concurrent writers retry instead of
	// returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS task_events (
			id           TEXT PRIMARY KEY,
			workflow_id  TEXT NOT NULL,
			task_id      TEXT NOT NULL,
			status       TEXT NOT NULL,
			model        TEXT,
			response     TEXT,
			error        TEXT,
			duration_ms  INTEGER,
			started_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_workflow ON task_events(workflow_id, started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// SaveEvents upserts a run's event snapshot.
func (s *Store) SaveEvents(events []workflow.TaskEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO task_events
		(id, workflow_id, task_id, status, model, response, error, duration_ms, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			response = excluded.response,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.Exec(
			e.ID, e.WorkflowID, e.TaskID, string(e.Status),
			e.Details.Model, e.Details.Response, e.Details.Error,
			e.Details.Duration.Milliseconds(), e.Timestamp, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// EventsForWorkflow loads a run's events ordered by start time.
func (s *Store) EventsForWorkflow(workflowID string) ([]workflow.TaskEvent, error) {
	rows, err := s.db.Query(`SELECT id, workflow_id, task_id, status, model, response, error, duration_ms, started_at, updated_at
		FROM task_events WHERE workflow_id = ? ORDER BY started_at, task_id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []workflow.TaskEvent
	for rows.Next() {
		var e workflow.TaskEvent
		var status string
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.TaskID, &status,
			&e.Details.Model, &e.Details.Response, &e.Details.Error,
			&durationMS, &e.Timestamp, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Status = workflow.EventStatus(status)
		e.Details.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, e)
	}
	return events, rows.Err()
}
