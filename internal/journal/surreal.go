package journal

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// surrealSchema defines the submission table shared by every cutout client
// pointed at the same database.
const surrealSchema = `
	DEFINE TABLE IF NOT EXISTS submission SCHEMALESS;
	DEFINE INDEX IF NOT EXISTS submission_job ON submission FIELDS job_id UNIQUE;
	DEFINE INDEX IF NOT EXISTS submission_category ON submission FIELDS category;
`

// Surreal is a journal stored in SurrealDB, for sharing job state between machines.
type Surreal struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger logger.Logger
}

// OpenSurreal connects with an auto-reconnecting WebSocket, signs in and
// ensures the schema exists.
func OpenSurreal(ctx context.Context, cfg Config) (*Surreal, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())

	// Use surrealcbor for CBOR encoding/decoding (handles SurrealDB custom tags)
	codec := surrealcbor.New()

	// gorillaws adds /rpc itself
	baseURL := strings.TrimSuffix(cfg.Target, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.Target)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if _, err := db.SignIn(ctx, surrealdb.Auth{
		Username: cfg.Username,
		Password: cfg.Password,
	}); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	namespace, database := cfg.Namespace, cfg.Database
	if namespace == "" {
		namespace = "cutout"
	}
	if database == "" {
		database = "cutout"
	}
	if err := db.Use(ctx, namespace, database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, surrealSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sdkLogger.Info("journal opened", "backend", "surrealdb", "namespace", namespace, "database", database)
	return &Surreal{conn: conn, db: db, logger: sdkLogger}, nil
}

// Record upserts the job's current state. created_at is only set on insert.
func (s *Surreal) Record(ctx context.Context, job jobs.Job) error {
	e := toEntry(job)
	_, err := surrealdb.Query[any](ctx, s.db, `
		UPSERT type::record("submission", $job_id) SET
			job_id = $job_id,
			category = $category,
			file_name = $file_name,
			file_path = $file_path,
			file_size = $file_size,
			content_type = $content_type,
			scale = $scale,
			enhance_before = $enhance_before,
			handle = $handle,
			phase = $phase,
			progress = $progress,
			original_url = $original_url,
			result_url = $result_url,
			error = $error,
			created_at = IF created_at THEN created_at ELSE $created_at END,
			updated_at = $updated_at
	`, map[string]any{
		"job_id":         e.JobID,
		"category":       e.Category,
		"file_name":      e.FileName,
		"file_path":      e.FilePath,
		"file_size":      e.FileSize,
		"content_type":   e.ContentType,
		"scale":          e.Scale,
		"enhance_before": e.EnhanceBefore,
		"handle":         e.Handle,
		"phase":          e.Phase,
		"progress":       e.Progress,
		"original_url":   e.OriginalURL,
		"result_url":     e.ResultURL,
		"error":          e.Error,
		"created_at":     e.CreatedAt,
		"updated_at":     e.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// Forget deletes the given jobs.
func (s *Surreal) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := surrealdb.Query[any](ctx, s.db, `DELETE submission WHERE job_id IN $ids`, map[string]any{"ids": ids})
	if err != nil {
		return fmt.Errorf("forget jobs: %w", err)
	}
	return nil
}

// Load returns every recorded job in creation order.
func (s *Surreal) Load(ctx context.Context) ([]jobs.Job, error) {
	results, err := surrealdb.Query[[]entry](ctx, s.db, `
		SELECT * OMIT id FROM submission ORDER BY created_at ASC, job_id ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	var out []jobs.Job
	for _, e := range (*results)[0].Result {
		job, err := e.job()
		if err != nil {
			s.logger.Warn("skipping unreadable journal record", "error", err)
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Wipe deletes every journaled job. Use for testing only.
func (s *Surreal) Wipe(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, `DELETE submission`, nil); err != nil {
		return fmt.Errorf("wipe journal: %w", err)
	}
	return nil
}

// Close closes the SurrealDB connection.
func (s *Surreal) Close(ctx context.Context) error {
	s.logger.Info("closing SurrealDB connection")
	return s.conn.Close(ctx)
}
