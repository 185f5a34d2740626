package intake

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures Watch.
type WatchConfig struct {
	Dir         string
	InitialScan bool          // if true, emit images already in Dir
	Debounce    time.Duration // coalesce rapid create/write bursts per file
	Logger      *slog.Logger
}

// Watch emits the paths of images created or written in cfg.Dir until ctx is
// cancelled. Each path is emitted once its writes have been quiet for
// cfg.Debounce. Both channels are closed when watching stops.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if cfg.Dir == "" {
		return nil, nil, errors.New("no directory provided")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	var existing []string
	if cfg.InitialScan {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
		for _, e := range entries {
			p := filepath.Join(cfg.Dir, e.Name())
			if !e.IsDir() && Allowed(p) && !IsHidden(p) {
				existing = append(existing, p)
			}
		}
	}

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				cfg.Logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, p := range existing {
			if !emit(p) {
				return
			}
		}

		pending := map[string]time.Time{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()

		flush := func(now time.Time) bool {
			var ready []string
			for p, due := range pending {
				if !now.Before(due) {
					ready = append(ready, p)
					delete(pending, p)
				}
			}
			sort.Strings(ready)
			for _, p := range ready {
				if !emit(p) {
					return false
				}
			}
			if next, ok := earliest(pending); ok {
				timer.Reset(max(0, next.Sub(now)))
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return

			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if !Allowed(e.Name) || IsHidden(e.Name) || !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
					continue
				}
				now := time.Now()
				pending[e.Name] = now.Add(cfg.Debounce)
				if cfg.Debounce <= 0 {
					if !flush(now) {
						return
					}
					continue
				}
				timer.Reset(cfg.Debounce)

			case <-timer.C:
				if !flush(time.Now()) {
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cfg.Logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func earliest(pending map[string]time.Time) (time.Time, bool) {
	var first time.Time
	for _, due := range pending {
		if first.IsZero() || due.Before(first) {
			first = due
		}
	}
	return first, !first.IsZero()
}
