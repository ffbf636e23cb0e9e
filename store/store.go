// Package store implements the shared coordination store: the task
// lifecycle engine, the dependency graph, the activity log, and the
// read-only projections consumed by the CLI and the dashboard server.
//
// All state lives in a single SQLite database shared by every caller.
// Concurrency safety comes from expressing each lifecycle transition as
// one guarded UPDATE whose WHERE clause encodes the expected prior
// state; zero rows affected means a concurrent writer won the race.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	subject      TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	owner        TEXT,
	priority     INTEGER NOT NULL DEFAULT 0,
	parent_id    INTEGER REFERENCES tasks(id),
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	claimed_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS task_deps (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    INTEGER NOT NULL,
	blocked_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(task_id, blocked_by)
);

CREATE TABLE IF NOT EXISTS agents (
	name      TEXT PRIMARY KEY,
	role      TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT 'idle',
	last_seen DATETIME
);

CREATE TABLE IF NOT EXISTS activity (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      DATETIME NOT NULL,
	agent   TEXT NOT NULL,
	action  TEXT NOT NULL,
	task_id INTEGER,
	detail  TEXT NOT NULL DEFAULT '',
	meta    TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent   TEXT,
	body       TEXT NOT NULL,
	msg_type   TEXT NOT NULL DEFAULT 'comment',
	task_id    INTEGER,
	created_at DATETIME NOT NULL,
	read_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner);
CREATE INDEX IF NOT EXISTS idx_activity_agent ON activity(agent);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_agent);
`

// Store is the shared coordination store. It is safe for concurrent use
// by any number of callers; every operation is a single transaction
// against the underlying database and no task state is cached in memory.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at dbPath and ensures the
// schema exists. File-backed databases run in WAL mode so concurrent
// agent processes don't serialize on the journal. The caller is
// responsible for calling Close.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if !strings.Contains(dbPath, ":memory:") {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// SetLogger replaces the logger used for best-effort side effects.
func (s *Store) SetLogger(logger *slog.Logger) { s.logger = logger }

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// LastUpdated returns the most recent updated_at across all tasks, or
// the zero time when no tasks exist. The dashboard heartbeat polls this
// to decide when connected clients should refresh.
func (s *Store) LastUpdated() (time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(updated_at) FROM tasks`).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last updated: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// inTx runs fn inside a transaction, committing on nil and rolling back
// on error.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
