// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history records every run in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/raibid-labs/cfgsync/internal/reporter"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one recorded run.
type Run struct {
	ID       string            `json:"run_id"`
	Mode     string            `json:"mode"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	DryRun   bool              `json:"dry_run"`
	Strict   bool              `json:"strict"`
	ExitCode int               `json:"exit_code"`
	Counters reporter.Counters `json:"summary"`
}

// Entry is one repository's result within a recorded run.
type Entry struct {
	RunID      string    `json:"run_id"`
	Started    time.Time `json:"started"`
	Repo       string    `json:"repo"`
	Type       string    `json:"type,omitempty"`
	Status     string    `json:"status"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
	Info       int       `json:"info"`
	SyncStatus string    `json:"sync_status,omitempty"`
	PRURL      string    `json:"pr_url,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store is the run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps SQLite from reporting busy errors.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordRun stores the summary and its per-repository results in one transaction.
func (s *Store) RecordRun(ctx context.Context, sum *reporter.Summary) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	c := sum.Counters
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at, finished_at, dry_run, strict, exit_code,
			processed, compliant, warnings, non_compliant, synced, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Mode, sum.Started.UnixMilli(), sum.Finished.UnixMilli(), sum.DryRun, sum.Strict, sum.ExitCode,
		c.Processed, c.Compliant, c.Warnings, c.NonCompliant, c.Synced, c.Skipped, c.Failed)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", sum.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repository_results (run_id, repo, type, status, errors, warnings, info, sync_status, pr_url, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range sum.Results {
		var e Entry
		if r.Report != nil {
			e.Errors, e.Warnings, e.Info = r.Report.Errors, r.Report.Warnings, r.Report.Info
		}
		if r.Sync != nil {
			e.SyncStatus = string(r.Sync.Status)
			if r.Sync.PR != nil {
				e.PRURL = r.Sync.PR.URL
			}
		}
		if _, err = stmt.ExecContext(ctx, sum.RunID, r.Repo, string(r.Type), string(r.Outcome),
			e.Errors, e.Warnings, e.Info, e.SyncStatus, e.PRURL, r.Error); err != nil {
			return fmt.Errorf("recording result for %s: %w", r.Repo, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, dry_run, strict, exit_code,
			processed, compliant, warnings, non_compliant, synced, skipped, failed
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		c := &r.Counters
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished, &r.DryRun, &r.Strict, &r.ExitCode,
			&c.Processed, &c.Compliant, &c.Warnings, &c.NonCompliant, &c.Synced, &c.Skipped, &c.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Started = time.UnixMilli(started).UTC()
		r.Finished = time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepositoryHistory returns the recorded results for repo, newest first.
func (s *Store) RepositoryHistory(ctx context.Context, repo string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, runs.started_at, r.repo, r.type, r.status, r.errors, r.warnings, r.info,
			r.sync_status, r.pr_url, r.error
		FROM repository_results r JOIN runs ON runs.id = r.run_id
		WHERE r.repo = ?
		ORDER BY runs.started_at DESC LIMIT ?`, repo, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history of %s: %w", repo, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started int64
		if err := rows.Scan(&e.RunID, &started, &e.Repo, &e.Type, &e.Status, &e.Errors, &e.Warnings, &e.Info,
			&e.SyncStatus, &e.PRURL, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		e.Started = time.UnixMilli(started).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
