package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/cutout/internal/client"
	"github.com/raphaelgruber/cutout/internal/metrics"
)

// DefaultInterval is the polling period per category.
const DefaultInterval = 2 * time.Second

// Service is the remote processing service as seen by the orchestrator.
// *client.Client implements it.
type Service interface {
	Upload(ctx context.Context, req client.UploadRequest) (*client.UploadResponse, error)
	Status(ctx context.Context, taskID string) (*client.StatusResponse, error)
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
	OriginalURL(filename string) string
	ResultURL(outputID string) string
}

// Config configures an Orchestrator.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	// Open returns the bytes of a job's source file. Defaults to os.Open(file.Path).
	Open func(File) (io.ReadCloser, error)
}

// Orchestrator drives jobs through upload and polling.
// It runs at most one polling loop per category, and only while that
// category has a Queued or Running job.
type Orchestrator struct {
	store    *Store
	svc      Service
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
	open     func(File) (io.ReadCloser, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	loops  map[Category]bool
	closed bool
}

// NewOrchestrator creates an orchestrator over store and svc.
func NewOrchestrator(store *Store, svc Service, cfg Config) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Open == nil {
		cfg.Open = func(f File) (io.ReadCloser, error) { return os.Open(f.Path) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    store,
		svc:      svc,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		open:     cfg.Open,
		ctx:      ctx,
		cancel:   cancel,
		loops:    make(map[Category]bool),
	}
}

// Store returns the job store the orchestrator drives.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// Submit admits a file and uploads it in the background. The returned job is
// Unsubmitted; its outcome arrives through the store. Cancelling ctx aborts
// the upload.
func (o *Orchestrator) Submit(ctx context.Context, category Category, file File, opts Options) (Job, error) {
	job, err := o.store.Add(category, file, opts)
	if err != nil {
		return Job{}, err
	}

	started := o.spawn(func() {
		upCtx, cancel := context.WithCancel(o.ctx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		if _, err := o.Upload(upCtx, job.ID); err != nil {
			o.logger.Debug("background upload ended with error", "job_id", job.ID, "error", err)
		}
	})
	if !started {
		_, _ = o.store.FailUpload(job.ID, InterruptedUploadMessage)
		return job, fmt.Errorf("submit %s: orchestrator closed", job.ID)
	}
	return job, nil
}

// Upload sends one Unsubmitted job to the service and records the outcome.
// On success the category's polling loop is started if it is not running.
func (o *Orchestrator) Upload(ctx context.Context, id string) (Job, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Phase != PhaseUnsubmitted {
		return job, fmt.Errorf("%w: upload of %s job %s", ErrInvalidTransition, job.Phase, id)
	}
	spec, _ := job.Category.Spec()

	body, err := o.open(job.File)
	if err != nil {
		o.metrics.RecordFailure(metrics.OpUpload)
		failed, _ := o.store.FailUpload(id, "Cannot read file")
		return failed, fmt.Errorf("open %s: %w", job.File.Name, err)
	}
	defer body.Close()

	scale, enhance := job.Options.uploadFields(spec)
	start := time.Now()
	resp, err := o.svc.Upload(ctx, client.UploadRequest{
		TaskType:      spec.TaskType,
		FileName:      job.File.Name,
		ContentType:   job.File.ContentType,
		Body:          body,
		Scale:         scale,
		EnhanceBefore: enhance,
	})
	if err != nil {
		message := uploadMessage(err)
		if ctx.Err() != nil {
			message = InterruptedUploadMessage
		} else {
			o.metrics.RecordFailure(metrics.OpUpload)
		}
		failed, ferr := o.store.FailUpload(id, message)
		if errors.Is(ferr, ErrNotFound) {
			return Job{}, ferr
		}
		return failed, fmt.Errorf("upload %s: %w", job.File.Name, err)
	}
	o.metrics.RecordTransfer(metrics.OpUpload, time.Since(start), job.File.Size)

	queued, err := o.store.ApplyUpload(id, resp.TaskID, o.svc.OriginalURL(resp.Filename))
	if err != nil {
		return queued, err
	}
	o.ensureLoop(job.Category)
	return queued, nil
}

// Resume starts polling for every category that has pollable jobs, e.g. after
// jobs were restored from the journal.
func (o *Orchestrator) Resume() {
	for _, c := range Categories() {
		o.ensureLoop(c)
	}
}

// Polling reports whether category currently has a running loop.
func (o *Orchestrator) Polling(category Category) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loops[category]
}

// Tick issues one status check per claimable job in category without waiting
// for the results. Returns the number of checks issued.
func (o *Orchestrator) Tick(ctx context.Context, category Category) int {
	issued := 0
	for _, claim := range o.store.ClaimPolls(category) {
		if !o.spawn(func() { o.poll(ctx, claim) }) {
			o.store.ReleasePoll(claim)
			continue
		}
		issued++
	}
	return issued
}

// PollOnce checks every claimable job in category and waits for the results.
func (o *Orchestrator) PollOnce(ctx context.Context, category Category) int {
	claims := o.store.ClaimPolls(category)

	var wg sync.WaitGroup
	for _, claim := range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.poll(ctx, claim)
		}()
	}
	wg.Wait()
	return len(claims)
}

// Download fetches a Succeeded job's artifact into dir, naming it after the
// source file with the category's result extension. An existing file is never
// overwritten; the job ID is appended instead. Returns the written path.
func (o *Orchestrator) Download(ctx context.Context, id, dir string) (string, error) {
	job, ok := o.store.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Phase != PhaseSucceeded {
		return "", fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.Phase)
	}
	spec, _ := job.Category.Spec()

	base := strings.TrimSuffix(filepath.Base(job.File.Name), filepath.Ext(job.File.Name))
	f, path, err := createArtifact(dir, base, id, spec.ResultExt)
	if err != nil {
		return "", err
	}

	start := time.Now()
	n, err := o.svc.Download(ctx, job.ResultURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		o.metrics.RecordFailure(metrics.OpDownload)
		_ = os.Remove(path)
		return "", fmt.Errorf("download %s: %w", job.ResultURL, err)
	}
	o.metrics.RecordTransfer(metrics.OpDownload, time.Since(start), n)

	o.logger.Info("result downloaded", "job_id", id, "path", path, "bytes", n)
	return path, nil
}

// Close stops every loop, cancels in-flight requests and waits for all
// goroutines. Results that arrive afterwards are discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// =============================================================================
// LOOP
// =============================================================================

// spawn runs fn in a tracked goroutine unless the orchestrator is closed.
func (o *Orchestrator) spawn(fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
	return true
}

// ensureLoop starts the category loop if none is running and there is
// something to poll. The check and the start happen under one lock.
func (o *Orchestrator) ensureLoop(category Category) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.loops[category] || !o.store.HasPollable(category) {
		return
	}
	o.loops[category] = true
	o.wg.Add(1)
	go o.loop(category)

	o.logger.Debug("polling started", "category", category, "interval", o.interval)
}

func (o *Orchestrator) loop(category Category) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			o.mu.Lock()
			delete(o.loops, category)
			o.mu.Unlock()
			return
		case <-ticker.C:
			o.Tick(o.ctx, category)
			if o.idle(category) {
				o.logger.Debug("polling stopped", "category", category)
				return
			}
		}
	}
}

// idle retires the loop when nothing in category is pollable.
func (o *Orchestrator) idle(category Category) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.store.HasPollable(category) {
		return false
	}
	delete(o.loops, category)
	return true
}

// poll performs one status check for claim. Transport and decoding problems
// are soft: the claim is released and the next tick tries again.
func (o *Orchestrator) poll(ctx context.Context, claim PollClaim) {
	start := time.Now()
	resp, err := o.svc.Status(ctx, claim.Handle)
	if err != nil {
		o.store.ReleasePoll(claim)
		o.metrics.RecordFailure(metrics.OpPoll)
		o.logger.Debug("status check failed", "job_id", claim.JobID, "handle", claim.Handle, "error", err)
		return
	}

	snap, err := normalize(resp, o.svc.ResultURL)
	if err != nil {
		o.store.ReleasePoll(claim)
		o.metrics.RecordFailure(metrics.OpPoll)
		o.logger.Debug("status response ignored", "job_id", claim.JobID, "handle", claim.Handle, "error", err)
		return
	}
	o.metrics.RecordTiming(metrics.OpPoll, time.Since(start))

	if ctx.Err() != nil {
		o.store.ReleasePoll(claim)
		return
	}
	if _, applied := o.store.ApplyStatus(claim, snap); !applied {
		o.logger.Debug("status unchanged or stale", "job_id", claim.JobID, "phase", snap.Phase)
	}
}

// createArtifact exclusively creates base+ext in dir, falling back to
// base-id+ext when that name is taken.
func createArtifact(dir, base, id, ext string) (*os.File, string, error) {
	var err error
	for _, name := range []string{base + ext, base + "-" + id + ext} {
		path := filepath.Join(dir, name)
		var f *os.File
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("create %s: %w", filepath.Join(dir, base+"-"+id+ext), err)
}

// uploadMessage is the display text for a failed upload.
func uploadMessage(err error) string {
	var upErr *client.UploadError
	if errors.As(err, &upErr) && upErr.Message != "" {
		return upErr.Message
	}
	return client.GenericUploadMessage
}
