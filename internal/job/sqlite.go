package job

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/clipstitch/internal/media"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository keeps export job history in a SQLite file.
// Jobs that were writing when the process stopped are marked failed on open.
type SQLiteRepository struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepository opens (and migrates) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteRepository(path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{conn: conn, logger: logger.With("component", "job_store")}
	if err := r.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if n, err := r.markInterrupted(); err != nil {
		r.logger.Warn("failed to mark interrupted exports", "error", err)
	} else if n > 0 {
		r.logger.Info("marked interrupted exports as failed", "count", n)
	}

	return r, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}

func (r *SQLiteRepository) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range entries {
		if m.IsDir() || r.isMigrationApplied(m.Name()) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + m.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", m.Name(), err)
		}
		if _, err := r.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Name(), err)
		}
		if _, err := r.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", m.Name()); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Name(), err)
		}
		r.logger.Info("applied migration", "name", m.Name())
	}
	return nil
}

func (r *SQLiteRepository) isMigrationApplied(name string) bool {
	var applied int
	err := r.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (r *SQLiteRepository) markInterrupted() (int64, error) {
	now := formatTime(time.Now())
	res, err := r.conn.Exec(
		`UPDATE export_jobs SET status = ?, error = 'interrupted by restart', updated_at = ?, completed_at = ?
		 WHERE status IN (?, ?)`,
		StatusFailed, now, now, StatusCreated, StatusWriting)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Save inserts or replaces a job.
func (r *SQLiteRepository) Save(ctx context.Context, job *Job) error {
	j := job.Clone()
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO export_jobs (
			id, composition_id, status, progress, error, output_path, container,
			duration_ticks, publish_url, created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			composition_id = excluded.composition_id,
			status = excluded.status,
			progress = excluded.progress,
			error = excluded.error,
			output_path = excluded.output_path,
			container = excluded.container,
			duration_ticks = excluded.duration_ticks,
			publish_url = excluded.publish_url,
			updated_at = excluded.updated_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		j.ID, j.CompositionID, string(j.Status), j.Progress, j.Error, j.OutputPath, j.Container,
		int64(j.Duration), j.PublishURL,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt), formatTime(j.StartedAt), formatTime(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

const selectJob = `SELECT id, composition_id, status, progress, error, output_path, container,
	duration_ticks, publish_url, created_at, updated_at, started_at, completed_at FROM export_jobs`

// FindByID returns ErrJobNotFound if no row matches.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	row := r.conn.QueryRowContext(ctx, selectJob+" WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return j, nil
}

// List returns all jobs, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Job, error) {
	rows, err := r.conn.QueryContext(ctx, selectJob+" ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Delete returns ErrJobNotFound if no row matches.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.conn.ExecContext(ctx, "DELETE FROM export_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		j                                       Job
		status                                  string
		duration                                int64
		created, updated, started, completedStr string
	)
	err := s.Scan(&j.ID, &j.CompositionID, &status, &j.Progress, &j.Error, &j.OutputPath, &j.Container,
		&duration, &j.PublishURL, &created, &updated, &started, &completedStr)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.Duration = media.Time(duration)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	j.StartedAt = parseTime(started)
	j.CompletedAt = parseTime(completedStr)
	return &j, nil
}

// formatTime stores timestamps in a lexically sortable UTC form; zero is empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
