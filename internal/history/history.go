// Package history keeps a SQLite log of completed zone runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/sweeney/sprinkler-controller/internal/zone"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	connectionTimeout = 5 * time.Second
	busyTimeoutMs     = 5000

	defaultLimit = 50
	maxLimit     = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	zone        INTEGER NOT NULL,
	name        TEXT    NOT NULL,
	started_ms  INTEGER NOT NULL,
	ended_ms    INTEGER NOT NULL,
	cause       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs (ended_ms);
`

// Run is one completed ON period of a zone.
type Run struct {
	ID    int64
	Zone  int
	Name  string
	Start time.Time
	End   time.Time
	Cause zone.Cause
}

// Duration is how long the zone was on.
func (r Run) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// FromChange converts a change that ended a run. ok is false for any
// other change, including failed switch-offs.
func FromChange(c zone.Change) (Run, bool) {
	if !c.Ended() || c.Err != nil {
		return Run{}, false
	}
	return Run{
		Zone:  c.Zone,
		Name:  c.Name,
		Start: c.ActivatedAt,
		End:   c.At,
		Cause: c.Cause,
	}, true
}

// Store is a run log on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite has a single writer

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	_ = os.Chmod(path, filePermissions)

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing history database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record appends a completed run.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.Zone < 1 {
		return fmt.Errorf("history: invalid zone %d", r.Zone)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (zone, name, started_ms, ended_ms, cause) VALUES (?, ?, ?, ?, ?)",
		r.Zone, r.Name, r.Start.UnixMilli(), r.End.UnixMilli(), string(r.Cause),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Recent returns the most recently ended runs, newest first.
// limit defaults to 50 and is capped at 500.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, zone, name, started_ms, ended_ms, cause
		 FROM runs
		 ORDER BY ended_ms DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		var startMs, endMs int64
		var cause string
		if err := rows.Scan(&r.ID, &r.Zone, &r.Name, &startMs, &endMs, &cause); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Start = time.UnixMilli(startMs).UTC()
		r.End = time.UnixMilli(endMs).UTC()
		r.Cause = zone.Cause(cause)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
