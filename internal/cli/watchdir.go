package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/cutout/internal/intake"
	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	watchDirInitial  bool
	watchDirScale    int
	watchDirEnhance  bool
	watchDirDebounce time.Duration
)

var watchDirCmd = &cobra.Command{
	Use:   "watch-dir <category> <dir>",
	Short: "Submit images as they appear in a directory",
	Long: `Watch a directory and submit every new JPEG, PNG or WebP image to the
category. Status changes are printed until interrupted with Ctrl+C.

Examples:
  cutout watch-dir remove-background ~/Pictures/inbox
  cutout watch-dir vectorize ./logos --initial --scale 8`,
	Args: cobra.ExactArgs(2),
	RunE: runWatchDir,
}

func init() {
	watchDirCmd.Flags().BoolVar(&watchDirInitial, "initial", false, "also submit images already in the directory")
	watchDirCmd.Flags().IntVar(&watchDirScale, "scale", 0, "vectorize upscale factor: 2, 4 or 8 (default from config)")
	watchDirCmd.Flags().BoolVar(&watchDirEnhance, "enhance", false, "vectorize: enhance before tracing (default from config)")
	watchDirCmd.Flags().DurationVar(&watchDirDebounce, "debounce", 500*time.Millisecond, "wait for writes to settle before submitting")
}

func runWatchDir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	category, err := jobs.ParseCategory(args[0])
	if err != nil {
		return err
	}
	opts := optionsFromFlags(cmd, "scale", "enhance", watchDirScale, watchDirEnhance)
	if err := opts.Validate(); err != nil {
		return err
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.orch.Resume()

	paths, errs, err := intake.Watch(ctx, intake.WatchConfig{
		Dir:         args[1],
		InitialScan: watchDirInitial,
		Debounce:    watchDirDebounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s for %s (%d slot(s) free). Press Ctrl+C to stop.\n",
		args[1], category, sess.store.Remaining(category))

	changes, unsubscribe := sess.store.Subscribe()
	defer unsubscribe()
	f := newFollower(sess.store, []jobs.Category{category}, os.Stdout)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopped watching.")
			return nil
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			res := intake.Admit(ctx, sess.orch, category, []string{path}, opts)
			printRejections(res.Rejected)
			for _, r := range res.Rejected {
				if errors.Is(r.Err, jobs.ErrCapacity) {
					fmt.Fprintf(os.Stderr, "%s is full; remove or reset jobs to continue\n", category)
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch error", "dir", args[1], "error", err)
		case <-changes:
			f.print()
		}
	}
}
