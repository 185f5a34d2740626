package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/raphaelgruber/cutout/internal/jobs"
)

// follower prints one line per job whenever its status line changes.
type follower struct {
	store      *jobs.Store
	categories []jobs.Category
	out        io.Writer
	last       map[string]string
}

func newFollower(store *jobs.Store, categories []jobs.Category, out io.Writer) *follower {
	return &follower{store: store, categories: categories, out: out, last: make(map[string]string)}
}

// print writes the jobs whose status changed since the previous call and
// reports whether any job is still uploading or being processed.
func (f *follower) print() (active bool) {
	seen := make(map[string]bool)
	for _, c := range f.categories {
		for _, job := range f.store.Snapshot(c) {
			seen[job.ID] = true
			if job.Phase == jobs.PhaseUnsubmitted || job.Phase.Pollable() {
				active = true
			}

			line := job.StatusLine()
			if f.last[job.ID] == line {
				continue
			}
			f.last[job.ID] = line
			fmt.Fprintf(f.out, "%-18s %-8s %-24s %s\n", job.Category, job.ID, truncate(job.File.Name, 24), line)
			if job.Phase == jobs.PhaseSucceeded && verbose {
				fmt.Fprintf(f.out, "  result: %s\n", job.ResultURL)
			}
		}
	}
	for id := range f.last {
		if !seen[id] {
			delete(f.last, id)
		}
	}
	return active
}

// follow prints status changes in categories until nothing is in progress.
// With untilDone false it keeps following until ctx is cancelled.
func follow(ctx context.Context, store *jobs.Store, categories []jobs.Category, out io.Writer, untilDone bool) error {
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	f := newFollower(store, categories, out)
	for {
		if !f.print() && untilDone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
	}
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
