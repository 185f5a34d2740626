// Package cli provides the command-line interface for cutout.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/cutout/internal/client"
	"github.com/raphaelgruber/cutout/internal/config"
	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/raphaelgruber/cutout/internal/journal"
	"github.com/raphaelgruber/cutout/internal/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and shared components
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	apiClient *client.Client
	jrnl      journal.Journal
	collector *metrics.Collector
)

// boardAnnotation marks commands that may take over the terminal. Their
// stderr logging is suppressed so the board is not corrupted.
const boardAnnotation = "board"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cutout",
	Short: "Submit images for background removal or vectorization",
	Long: `Cutout submits images to a remote processing service, tracks each
submission while the service works on it, and shows a before/after comparison
once the result is ready.

Two categories are supported:
  remove-background   strip the background, result is a PNG
  vectorize           convert raster to SVG (options: --scale, --enhance)

Jobs are journaled locally, so 'cutout watch' resumes tracking after a restart.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		quiet := cmd.Annotations[boardAnnotation] == "true" && isTerminal()
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel, quiet)
		slog.SetDefault(logger)

		apiClient = client.New(cfg.APIURL, cfg.ClientTimeout)
		collector = metrics.NewCollector()

		if cmd.Name() == "config" {
			return nil
		}

		start := time.Now()
		jrnl, err = journal.Open(cmd.Context(), journal.Config{
			Target:    cfg.Journal,
			Namespace: cfg.JournalNamespace,
			Database:  cfg.JournalDatabase,
			Username:  cfg.JournalUser,
			Password:  cfg.JournalPass,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		collector.RecordTiming(metrics.OpJournal, time.Since(start))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if jrnl != nil {
			if err := jrnl.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close journal: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// session is a store restored from the journal plus an orchestrator over it.
type session struct {
	store *jobs.Store
	orch  *jobs.Orchestrator
}

// openSession restores journaled jobs. Polling does not start until Resume.
func openSession(ctx context.Context) (*session, error) {
	store := jobs.NewStore(cfg.MaxImages,
		jobs.WithRecorder(jrnl),
		jobs.WithLogger(logger),
		jobs.WithMaxFileSize(cfg.MaxFileSize),
	)

	n, err := journal.Restore(ctx, jrnl, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	if n > 0 {
		logger.Debug("restored journaled jobs", "count", n)
	}

	orch := jobs.NewOrchestrator(store, apiClient, jobs.Config{
		Interval: cfg.PollInterval,
		Logger:   logger,
		Metrics:  collector,
	})
	return &session{store: store, orch: orch}, nil
}

// Close stops polling and flushes the journal. Uploads still running are
// cancelled and recorded as interrupted.
func (s *session) Close() {
	s.orch.Close()
	s.store.Close()
}

// finish closes the session and, if the service is still working on any
// job, tells the user how to pick tracking back up.
func (s *session) finish(w io.Writer) {
	s.Close()
	if processing(s.store) {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("Jobs continue on the service. Use 'cutout watch' to resume tracking."))
	}
}

// processing reports whether any job is queued or running on the service.
func processing(store *jobs.Store) bool {
	for _, c := range jobs.Categories() {
		if store.HasPollable(c) {
			return true
		}
	}
	return false
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(watchDirCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
}

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// categoryArgs parses an optional category argument; none means all.
func categoryArgs(args []string) ([]jobs.Category, error) {
	if len(args) == 0 {
		return jobs.Categories(), nil
	}
	c, err := jobs.ParseCategory(args[0])
	if err != nil {
		return nil, err
	}
	return []jobs.Category{c}, nil
}
