package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	category       TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	file_size      INTEGER NOT NULL,
	content_type   TEXT NOT NULL DEFAULT '',
	scale          INTEGER NOT NULL DEFAULT 0,
	enhance_before INTEGER NOT NULL DEFAULT 0,
	handle         TEXT NOT NULL DEFAULT '',
	phase          TEXT NOT NULL,          -- unsubmitted|queued|running|succeeded|failed
	progress       INTEGER NOT NULL DEFAULT 0,
	original_url   TEXT NOT NULL DEFAULT '',
	result_url     TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_category ON submissions(category, created_at);
`

// SQLite is a single-file journal.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the journal at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer at a time; concurrent cutout processes wait on busy_timeout.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	logger.Debug("journal opened", "backend", "sqlite", "path", path)
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Record upserts the job's current state.
func (s *SQLite) Record(ctx context.Context, job jobs.Job) error {
	e := toEntry(job)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO submissions (id, category, file_name, file_path, file_size, content_type, scale, enhance_before,
	handle, phase, progress, original_url, result_url, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	handle = excluded.handle,
	phase = excluded.phase,
	progress = excluded.progress,
	original_url = excluded.original_url,
	result_url = excluded.result_url,
	error = excluded.error,
	updated_at = excluded.updated_at`,
		e.JobID, e.Category, e.FileName, e.FilePath, e.FileSize, e.ContentType, e.Scale, e.EnhanceBefore,
		e.Handle, e.Phase, e.Progress, e.OriginalURL, e.ResultURL, e.Error,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// Forget deletes the given jobs.
func (s *SQLite) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("forget jobs: %w", err)
	}
	return nil
}

// Load returns every recorded job in creation order.
func (s *SQLite) Load(ctx context.Context) ([]jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, category, file_name, file_path, file_size, content_type, scale, enhance_before,
	handle, phase, progress, original_url, result_url, error, created_at, updated_at
FROM submissions
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		var e entry
		var created, updated string
		if err := rows.Scan(&e.JobID, &e.Category, &e.FileName, &e.FilePath, &e.FileSize, &e.ContentType,
			&e.Scale, &e.EnhanceBefore, &e.Handle, &e.Phase, &e.Progress, &e.OriginalURL, &e.ResultURL,
			&e.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CreatedAt = parseTime(created)
		e.UpdatedAt = parseTime(updated)

		job, err := e.job()
		if err != nil {
			s.logger.Warn("skipping unreadable journal row", "error", err)
			continue
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Path returns the journal file location.
func (s *SQLite) Path() string {
	return s.path
}
