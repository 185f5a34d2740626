// Package jobs holds the client-side job state machine and the polling orchestrator.
package jobs

import (
	"fmt"
	"time"
)

// Phase is a job's position in its lifecycle.
type Phase string

const (
	PhaseUnsubmitted Phase = "unsubmitted"
	PhaseQueued      Phase = "queued"
	PhaseRunning     Phase = "running"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether no further transition (other than removal) is possible.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Pollable reports whether the orchestrator should check the job's status.
func (p Phase) Pollable() bool {
	return p == PhaseQueued || p == PhaseRunning
}

// ParsePhase converts a stored phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseUnsubmitted, PhaseQueued, PhaseRunning, PhaseSucceeded, PhaseFailed:
		return p, nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// File describes the source image. The job owns it until removal.
type File struct {
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path" yaml:"path"`
	Size        int64  `json:"size" yaml:"size"`
	ContentType string `json:"content_type" yaml:"content_type"`
}

// SizeMB formats the size the way the board shows it.
func (f File) SizeMB() string {
	return fmt.Sprintf("%.2f MB", float64(f.Size)/1024/1024)
}

// Job is one submitted image's processing lifecycle.
// Values returned by the Store are copies.
type Job struct {
	ID          string
	Category    Category
	File        File
	Options     Options
	Handle      string // empty until upload succeeds
	Phase       Phase
	Progress    int
	OriginalURL string
	ResultURL   string // set only on entry to Succeeded
	Error       string // set only on entry to Failed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusLine is the short human description used in listings.
func (j Job) StatusLine() string {
	switch j.Phase {
	case PhaseUnsubmitted:
		return "Uploading..."
	case PhaseQueued:
		return "Waiting to process..."
	case PhaseRunning:
		return fmt.Sprintf("Processing... %d%%", j.Progress)
	case PhaseSucceeded:
		return "Done"
	case PhaseFailed:
		return j.Error
	default:
		return string(j.Phase)
	}
}

// Snapshot is a normalized status report for one handle.
type Snapshot struct {
	Phase     Phase // Queued, Running, Succeeded or Failed
	Progress  *int
	ResultRef string
	ResultURL string // ResultRef resolved against the service
}

// PollClaim marks one outstanding status check. Only the holder may apply
// a snapshot for it; the store ignores claims for removed jobs.
type PollClaim struct {
	JobID    string
	Category Category
	Handle   string
}
