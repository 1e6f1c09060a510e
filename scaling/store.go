package scaling

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Measurement is the wall time of one launch.
type Measurement struct {
	Workers int     `json:"workers"`
	Size    int     `json:"problem_size"`
	Seconds float64 `json:"seconds"`
}

// TagResult holds the timings stored under one tag, in worker order.
type TagResult struct {
	Type         Type          `json:"type"`
	Tag          string        `json:"tag"`
	Measurements []Measurement `json:"measurements"`
}

// Store keeps scaling timings in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore creates or opens the results database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSweep records a new sweep and returns its ID, a UUIDv7 so IDs sort
// by start time.
func (s *Store) BeginSweep(ctx context.Context, sw Sweep) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("sweep id: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sweeps (id, type, mode, program, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), string(sw.Type), string(sw.Mode), sw.Program,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert sweep: %w", err)
	}
	return id.String(), nil
}

// SaveTag stores r.Measurements under r.Tag. A worker count that already has
// a timing for the tag is overwritten; other worker counts are kept.
func (s *Store) SaveTag(ctx context.Context, sweepID string, r TagResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range r.Measurements {
		// A sweep may list a worker count twice; the last run wins.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO timings (type, tag, workers, problem_size, seconds, sweep_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(r.Type), r.Tag, m.Workers, m.Size, m.Seconds, sweepID); err != nil {
			return fmt.Errorf("insert timing %s/%d: %w", r.Tag, m.Workers, err)
		}
	}
	return tx.Commit()
}

// Results returns the stored tags of type t, or of all types if t is empty,
// ordered by type, tag and workers.
func (s *Store) Results(ctx context.Context, t Type) ([]TagResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, tag, workers, problem_size, seconds FROM timings
		 WHERE ? = '' OR type = ?
		 ORDER BY type ASC, tag ASC, workers ASC`, string(t), string(t))
	if err != nil {
		return nil, fmt.Errorf("query timings: %w", err)
	}
	defer rows.Close()

	var out []TagResult
	for rows.Next() {
		var (
			typ, tag string
			m        Measurement
		)
		if err := rows.Scan(&typ, &tag, &m.Workers, &m.Size, &m.Seconds); err != nil {
			return nil, fmt.Errorf("scan timing: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].Tag != tag || string(out[n-1].Type) != typ {
			out = append(out, TagResult{Type: Type(typ), Tag: tag})
		}
		out[len(out)-1].Measurements = append(out[len(out)-1].Measurements, m)
	}
	return out, rows.Err()
}

// SweepCount returns the number of recorded sweeps.
func (s *Store) SweepCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweeps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sweeps: %w", err)
	}
	return n, nil
}
