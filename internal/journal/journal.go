// Package journal persists job state between runs so polling can resume.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
)

// Journal records job transitions and replays them on startup.
type Journal interface {
	jobs.Recorder
	// Load returns every recorded job, oldest first.
	Load(ctx context.Context) ([]jobs.Job, error)
	Close(ctx context.Context) error
}

// Config selects and configures a journal backend.
type Config struct {
	// Target is a file path (SQLite), a ws:// or wss:// URL (SurrealDB),
	// or "none" / "" to disable journaling.
	Target    string
	Namespace string
	Database  string
	Username  string
	Password  string
	Logger    *slog.Logger
}

// Backend names.
const (
	BackendNone    = "none"
	BackendSQLite  = "sqlite"
	BackendSurreal = "surrealdb"
)

// Backend returns which backend target selects.
func Backend(target string) string {
	switch t := strings.TrimSpace(target); {
	case t == "" || t == "none":
		return BackendNone
	case strings.HasPrefix(t, "ws://"), strings.HasPrefix(t, "wss://"):
		return BackendSurreal
	default:
		return BackendSQLite
	}
}

// Open returns the backend named by cfg.Target.
func Open(ctx context.Context, cfg Config) (Journal, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch Backend(cfg.Target) {
	case BackendNone:
		return Nop{}, nil
	case BackendSurreal:
		return OpenSurreal(ctx, cfg)
	default:
		return OpenSQLite(ctx, strings.TrimSpace(cfg.Target), cfg.Logger)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, jobs.Job) error   { return nil }
func (Nop) Forget(context.Context, ...string) error  { return nil }
func (Nop) Load(context.Context) ([]jobs.Job, error) { return nil, nil }
func (Nop) Close(context.Context) error              { return nil }

// entry is the stored form of a job.
type entry struct {
	JobID         string    `json:"job_id"`
	Category      string    `json:"category"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileSize      int64     `json:"file_size"`
	ContentType   string    `json:"content_type"`
	Scale         int       `json:"scale"`
	EnhanceBefore bool      `json:"enhance_before"`
	Handle        string    `json:"handle"`
	Phase         string    `json:"phase"`
	Progress      int       `json:"progress"`
	OriginalURL   string    `json:"original_url"`
	ResultURL     string    `json:"result_url"`
	Error         string    `json:"error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toEntry(j jobs.Job) entry {
	return entry{
		JobID:         j.ID,
		Category:      string(j.Category),
		FileName:      j.File.Name,
		FilePath:      j.File.Path,
		FileSize:      j.File.Size,
		ContentType:   j.File.ContentType,
		Scale:         j.Options.Scale,
		EnhanceBefore: j.Options.EnhanceBefore,
		Handle:        j.Handle,
		Phase:         string(j.Phase),
		Progress:      j.Progress,
		OriginalURL:   j.OriginalURL,
		ResultURL:     j.ResultURL,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt.UTC(),
		UpdatedAt:     j.UpdatedAt.UTC(),
	}
}

func (e entry) job() (jobs.Job, error) {
	category, err := jobs.ParseCategory(e.Category)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("job %s: %w", e.JobID, err)
	}
	phase, err := jobs.ParsePhase(e.Phase)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("job %s: %w", e.JobID, err)
	}
	return jobs.Job{
		ID:       e.JobID,
		Category: category,
		File: jobs.File{
			Name:        e.FileName,
			Path:        e.FilePath,
			Size:        e.FileSize,
			ContentType: e.ContentType,
		},
		Options:     jobs.Options{Scale: e.Scale, EnhanceBefore: e.EnhanceBefore},
		Handle:      e.Handle,
		Phase:       phase,
		Progress:    e.Progress,
		OriginalURL: e.OriginalURL,
		ResultURL:   e.ResultURL,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

// Restore loads every journaled job into store. Jobs that were still
// uploading when the previous run ended cannot be resumed and are failed.
func Restore(ctx context.Context, j Journal, store *jobs.Store, logger *slog.Logger) (int, error) {
	recorded, err := j.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	restored := 0
	var skipped []string
	for _, job := range recorded {
		interrupted := job.Phase == jobs.PhaseUnsubmitted
		if err := store.Restore(job); err != nil {
			logger.Warn("dropping journaled job that cannot be restored",
				"job_id", job.ID, "file", job.File.Name, "handle", job.Handle, "result", job.ResultURL, "error", err)
			skipped = append(skipped, job.ID)
			continue
		}
		if interrupted {
			_, _ = store.FailUpload(job.ID, jobs.InterruptedUploadMessage)
		}
		restored++
	}

	// Rows the store rejects (over capacity, duplicate handle, inconsistent)
	// would otherwise stay in the journal where no command can reach them.
	if len(skipped) > 0 {
		if err := j.Forget(ctx, skipped...); err != nil {
			return restored, fmt.Errorf("forget unrestorable jobs: %w", err)
		}
	}
	return restored, nil
}
