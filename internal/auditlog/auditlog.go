// Package auditlog persists a one-row-per-block summary (never the
// MVStore's live key/value state, which stays unpersisted) for
// offline analysis of past runs.
//
// Uses modernc.org/sqlite, a pure-Go sqlite driver well suited to
// exactly this kind of local, dependency-free persistence.
package auditlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kvexec/tinystm/internal/blockid"
)

// Summary is one block's worth of audit information.
type Summary struct {
	ID            blockid.ID
	NumTxns       int
	StopVersion   int
	MaxDependency int
	NumThreads    int
	Duration      time.Duration
	Err           string // empty on success
	RanAt         time.Time
}

// Log appends Summaries to a local sqlite file.
type Log struct {
	db *sql.DB
}

// Open creates (if needed) the audit schema at path and returns a Log.
// path may be ":memory:" for an ephemeral, test-only log.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS block_summaries (
	id             TEXT PRIMARY KEY,
	num_txns       INTEGER NOT NULL,
	stop_version   INTEGER NOT NULL,
	max_dependency INTEGER NOT NULL,
	num_threads    INTEGER NOT NULL,
	duration_ns    INTEGER NOT NULL,
	error          TEXT NOT NULL,
	ran_at         INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (l *Log) Close() error { return l.db.Close() }

// Record inserts one Summary.
func (l *Log) Record(s Summary) error {
	_, err := l.db.Exec(
		`INSERT INTO block_summaries
			(id, num_txns, stop_version, max_dependency, num_threads, duration_ns, error, ran_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), s.NumTxns, s.StopVersion, s.MaxDependency, s.NumThreads,
		s.Duration.Nanoseconds(), s.Err, s.RanAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("auditlog: record: %w", err)
	}
	return nil
}

// Recent returns the n most recently recorded summaries, newest first.
func (l *Log) Recent(n int) ([]Summary, error) {
	rows, err := l.db.Query(
		`SELECT id, num_txns, stop_version, max_dependency, num_threads, duration_ns, error, ran_at
		 FROM block_summaries ORDER BY ran_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("auditlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var id string
		var durationNs int64
		var ranAt int64
		if err := rows.Scan(&id, &s.NumTxns, &s.StopVersion, &s.MaxDependency, &s.NumThreads, &durationNs, &s.Err, &ranAt); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		s.ID = blockid.ID(id)
		s.Duration = time.Duration(durationNs)
		s.RanAt = time.Unix(ranAt, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}
