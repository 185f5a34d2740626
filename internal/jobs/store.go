package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder persists job state outside the process. Calls are delivered in
// transition order from a single goroutine.
type Recorder interface {
	Record(ctx context.Context, job Job) error
	Forget(ctx context.Context, ids ...string) error
}

// Store owns every job, grouped into one ordered set per category.
// Job state changes only through its transition methods.
type Store struct {
	mu          sync.Mutex
	capacity    int
	maxFileSize int64
	sets        map[Category][]*Job
	byID        map[string]*Job
	handles     map[string]string   // handle -> job ID
	inflight    map[string]struct{} // handles with an outstanding poll
	subs        map[chan struct{}]struct{}
	logger      *slog.Logger
	now         func() time.Time

	recorder Recorder
	pending  []recordOp // guarded by mu
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

type recordOp struct {
	job    *Job
	forget []string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRecorder forwards every transition and removal to r.
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithMaxFileSize sets the upload size ceiling in bytes.
func WithMaxFileSize(n int64) StoreOption {
	return func(s *Store) { s.maxFileSize = n }
}

// NewStore creates a store holding at most capacity jobs per category.
func NewStore(capacity int, opts ...StoreOption) *Store {
	if capacity <= 0 {
		capacity = 10
	}
	s := &Store{
		capacity:    capacity,
		maxFileSize: 100 * 1024 * 1024,
		sets:        make(map[Category][]*Job),
		byID:        make(map[string]*Job),
		handles:     make(map[string]string),
		inflight:    make(map[string]struct{}),
		subs:        make(map[chan struct{}]struct{}),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder != nil {
		s.wake = make(chan struct{}, 1)
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.persist()
	}
	return s
}

// Capacity returns the per-category job limit.
func (s *Store) Capacity() int {
	return s.capacity
}

// MaxFileSize returns the upload size ceiling.
func (s *Store) MaxFileSize() int64 {
	return s.maxFileSize
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Add admits a file as a new Unsubmitted job. It rejects instead of truncating
// when the category is full.
func (s *Store) Add(category Category, file File, opts Options) (Job, error) {
	spec, ok := category.Spec()
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if file.Size <= 0 {
		return Job{}, fmt.Errorf("%w: %s", ErrEmptyFile, file.Name)
	}
	if file.Size > s.maxFileSize {
		return Job{}, fmt.Errorf("%w: %s is %s", ErrFileTooLarge, file.Name, file.SizeMB())
	}
	if spec.AcceptsOptions {
		if err := opts.Validate(); err != nil {
			return Job{}, err
		}
	} else {
		opts = Options{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sets[category]) >= s.capacity {
		return Job{}, fmt.Errorf("%w: %s holds %d jobs", ErrCapacity, category, s.capacity)
	}

	now := s.now()
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Category:  category,
		File:      file,
		Options:   opts,
		Phase:     PhaseUnsubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sets[category] = append(s.sets[category], job)
	s.byID[job.ID] = job
	s.changed(job)

	s.logger.Info("job added", "job_id", job.ID, "category", category, "file", file.Name, "size", file.Size)
	return *job, nil
}

// ApplyUpload moves an Unsubmitted job to Queued with its service handle.
// A handle already held by another job fails this job instead.
func (s *Store) ApplyUpload(id, handle, originalURL string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Phase != PhaseUnsubmitted {
		return *job, fmt.Errorf("%w: upload result for %s job %s", ErrInvalidTransition, job.Phase, id)
	}
	if handle == "" {
		return *job, fmt.Errorf("%w: empty handle for job %s", ErrInvalidTransition, id)
	}
	if owner, taken := s.handles[handle]; taken {
		s.fail(job, DuplicateHandleMessage)
		s.logger.Error("duplicate handle", "job_id", id, "handle", handle, "owner", owner)
		return *job, fmt.Errorf("%w: %s already held by %s", ErrDuplicateHandle, handle, owner)
	}

	job.Handle = handle
	job.OriginalURL = originalURL
	job.Phase = PhaseQueued
	job.Progress = 0
	job.UpdatedAt = s.now()
	s.handles[handle] = id
	s.changed(job)

	s.logger.Info("job queued", "job_id", id, "handle", handle)
	return *job, nil
}

// FailUpload moves an Unsubmitted job to Failed with a display message.
func (s *Store) FailUpload(id, message string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Phase != PhaseUnsubmitted {
		return *job, fmt.Errorf("%w: upload failure for %s job %s", ErrInvalidTransition, job.Phase, id)
	}
	if message == "" {
		message = "Error uploading file"
	}
	s.fail(job, message)

	s.logger.Warn("upload failed", "job_id", id, "error", message)
	return *job, nil
}

// ClaimPolls returns one claim per Queued/Running job in category that has no
// outstanding poll, in insertion order, and marks each as in flight.
func (s *Store) ClaimPolls(category Category) []PollClaim {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []PollClaim
	for _, job := range s.sets[category] {
		if !job.Phase.Pollable() || job.Handle == "" {
			continue
		}
		if _, busy := s.inflight[job.Handle]; busy {
			continue
		}
		s.inflight[job.Handle] = struct{}{}
		claims = append(claims, PollClaim{JobID: job.ID, Category: category, Handle: job.Handle})
	}
	return claims
}

// ReleasePoll ends a claim without applying anything (soft failure).
func (s *Store) ReleasePoll(claim PollClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, claim.Handle)
}

// ApplyStatus applies a snapshot for the claimed job and releases the claim.
// Returns false when the result is stale (job removed, handle changed) or the
// job is already terminal; such results change nothing.
func (s *Store) ApplyStatus(claim PollClaim, snap Snapshot) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, claim.Handle)

	job, ok := s.byID[claim.JobID]
	if !ok || job.Handle != claim.Handle || !job.Phase.Pollable() {
		return Job{}, false
	}

	switch snap.Phase {
	case PhaseQueued:
		// Still waiting on the service side; a Running job never moves back.
		return *job, false

	case PhaseRunning:
		progress := job.Progress
		if snap.Progress != nil {
			progress = clampProgress(*snap.Progress)
		}
		if job.Phase == PhaseRunning && progress == job.Progress {
			return *job, false
		}
		job.Phase = PhaseRunning
		job.Progress = progress

	case PhaseSucceeded:
		if snap.ResultURL == "" {
			return *job, false
		}
		job.Phase = PhaseSucceeded
		job.ResultURL = snap.ResultURL
		job.Progress = 100
		s.logger.Info("job succeeded", "job_id", job.ID, "handle", job.Handle, "result", job.ResultURL)

	case PhaseFailed:
		s.fail(job, ProcessingFailedMessage)
		s.logger.Warn("job failed", "job_id", job.ID, "handle", job.Handle)
		return *job, true

	default:
		return *job, false
	}

	job.UpdatedAt = s.now()
	s.changed(job)
	return *job, true
}

// Remove destroys a job. A poll still in flight for it resolves as a no-op.
func (s *Store) Remove(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.sets[job.Category] = slices.DeleteFunc(s.sets[job.Category], func(j *Job) bool { return j.ID == id })
	s.drop(job)
	s.forgotten(id)

	s.logger.Info("job removed", "job_id", id, "category", job.Category)
	return *job, nil
}

// Reset removes every job in category and returns how many were removed.
func (s *Store) Reset(category Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[category]
	if len(set) == 0 {
		return 0
	}
	ids := make([]string, 0, len(set))
	for _, job := range set {
		s.drop(job)
		ids = append(ids, job.ID)
	}
	delete(s.sets, category)
	s.forgotten(ids...)

	s.logger.Info("category reset", "category", category, "removed", len(ids))
	return len(ids)
}

// Restore inserts a previously recorded job unchanged. Capacity and handle
// uniqueness still apply.
func (s *Store) Restore(job Job) error {
	if !job.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, job.Category)
	}
	if (job.Phase == PhaseSucceeded) != (job.ResultURL != "") {
		return fmt.Errorf("%w: job %s is %s with result %q", ErrInvalidTransition, job.ID, job.Phase, job.ResultURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[job.ID]; exists {
		return fmt.Errorf("job %s already present", job.ID)
	}
	if len(s.sets[job.Category]) >= s.capacity {
		return fmt.Errorf("%w: %s holds %d jobs", ErrCapacity, job.Category, s.capacity)
	}
	if job.Handle != "" {
		if owner, taken := s.handles[job.Handle]; taken {
			return fmt.Errorf("%w: %s already held by %s", ErrDuplicateHandle, job.Handle, owner)
		}
		s.handles[job.Handle] = job.ID
	}

	j := job
	s.sets[job.Category] = append(s.sets[job.Category], &j)
	s.byID[j.ID] = &j
	s.notify()
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns copies of the jobs in category, in insertion order.
func (s *Store) Snapshot(category Category) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[category]
	out := make([]Job, len(set))
	for i, job := range set {
		out[i] = *job
	}
	return out
}

// Get returns a copy of the job with the given ID.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Len returns the number of jobs in category.
func (s *Store) Len(category Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[category])
}

// Remaining returns how many more jobs category can admit.
func (s *Store) Remaining(category Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(0, s.capacity-len(s.sets[category]))
}

// HasPollable reports whether category has a Queued or Running job.
func (s *Store) HasPollable(category Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.sets[category] {
		if job.Phase.Pollable() {
			return true
		}
	}
	return false
}

// InFlight reports whether a poll for handle is outstanding.
func (s *Store) InFlight(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[handle]
	return ok
}

// Subscribe returns a channel that receives a signal after any change, and a
// function that ends the subscription. Signals coalesce; readers re-read snapshots.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// Close flushes pending recorder calls and stops the persister.
func (s *Store) Close() {
	if s.recorder == nil {
		return
	}
	s.mu.Lock()
	select {
	case <-s.stop:
		s.mu.Unlock()
		return
	default:
	}
	close(s.stop)
	s.mu.Unlock()
	<-s.done
}

// =============================================================================
// INTERNAL (caller holds mu)
// =============================================================================

func (s *Store) fail(job *Job, message string) {
	job.Phase = PhaseFailed
	job.Error = message
	job.UpdatedAt = s.now()
	s.changed(job)
}

func (s *Store) drop(job *Job) {
	delete(s.byID, job.ID)
	if job.Handle != "" {
		delete(s.handles, job.Handle)
		delete(s.inflight, job.Handle)
	}
}

func (s *Store) changed(job *Job) {
	if s.recorder != nil {
		cp := *job
		s.enqueue(recordOp{job: &cp})
	}
	s.notify()
}

func (s *Store) forgotten(ids ...string) {
	if s.recorder != nil {
		s.enqueue(recordOp{forget: ids})
	}
	s.notify()
}

func (s *Store) notify() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) enqueue(op recordOp) {
	s.pending = append(s.pending, op)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// persist drains recorder operations in order until Close.
func (s *Store) persist() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Store) drain() {
	s.mu.Lock()
	ops := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, op := range ops {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		if op.job != nil {
			err = s.recorder.Record(ctx, *op.job)
		} else {
			err = s.recorder.Forget(ctx, op.forget...)
		}
		cancel()
		if err != nil {
			s.logger.Warn("failed to persist job state", "error", err)
		}
	}
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}
