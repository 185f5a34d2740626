package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/cutout/internal/intake"
	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	submitScale   int
	submitEnhance bool
	submitDetach  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <category> <image>...",
	Short: "Upload images for processing",
	Long: `Upload one or more images to the processing service.

Accepted formats are JPEG, PNG and WebP. Each category holds at most
max_images jobs; files beyond that are rejected.

Without --detach the board opens and follows the jobs until you quit.
With --detach each image is uploaded, the job is journaled and cutout exits;
use 'cutout watch' later to follow it.

Examples:
  cutout submit remove-background photo.jpg
  cutout submit vectorize logo.png --scale 8 --enhance
  cutout submit bg *.png --detach`,
	Args:        cobra.MinimumNArgs(2),
	Annotations: map[string]string{boardAnnotation: "true"},
	RunE:        runSubmit,
}

func init() {
	submitCmd.Flags().IntVar(&submitScale, "scale", 0, "vectorize upscale factor: 2, 4 or 8 (default from config)")
	submitCmd.Flags().BoolVar(&submitEnhance, "enhance", false, "vectorize: enhance before tracing (default from config)")
	submitCmd.Flags().BoolVarP(&submitDetach, "detach", "d", false, "upload and exit without following")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	category, err := jobs.ParseCategory(args[0])
	if err != nil {
		return err
	}
	opts := optionsFromFlags(cmd, "scale", "enhance", submitScale, submitEnhance)

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if submitDetach {
		res := intake.Admit(ctx, syncSubmitter{orch: sess.orch}, category, args[1:], opts)
		printRejections(res.Rejected)
		for _, job := range res.Jobs {
			fmt.Printf("%-8s %-24s %s\n", job.ID, truncate(job.File.Name, 24), job.StatusLine())
		}
		if len(res.Jobs) == 0 {
			return errors.New("no images submitted")
		}
		return nil
	}

	res := intake.Admit(ctx, sess.orch, category, args[1:], opts)
	if len(res.Jobs) == 0 {
		printRejections(res.Rejected)
		return errors.New("no images submitted")
	}

	if isTerminal() {
		notice := ""
		if n := len(res.Rejected); n > 0 {
			notice = fmt.Sprintf("%d file(s) rejected; run with --detach to see why", n)
		}
		return runBoard(ctx, sess, category, notice)
	}

	printRejections(res.Rejected)
	return followUntilDone(ctx, sess, []jobs.Category{category})
}

// syncSubmitter admits a file and uploads it before returning.
type syncSubmitter struct {
	orch *jobs.Orchestrator
}

func (s syncSubmitter) Submit(ctx context.Context, category jobs.Category, file jobs.File, opts jobs.Options) (jobs.Job, error) {
	job, err := s.orch.Store().Add(category, file, opts)
	if err != nil {
		return jobs.Job{}, err
	}
	return s.orch.Upload(ctx, job.ID)
}

// optionsFromFlags falls back to the configured vectorize defaults for flags
// the user did not set.
func optionsFromFlags(cmd *cobra.Command, scaleFlag, enhanceFlag string, scale int, enhance bool) jobs.Options {
	opts := jobs.Options{Scale: cfg.Scale, EnhanceBefore: cfg.EnhanceBefore}
	if cmd.Flags().Changed(scaleFlag) {
		opts.Scale = scale
	}
	if cmd.Flags().Changed(enhanceFlag) {
		opts.EnhanceBefore = enhance
	}
	return opts
}

func printRejections(rejected []intake.Rejection) {
	for _, r := range rejected {
		fmt.Fprintf(os.Stderr, "Skipped %s: %v\n", r.Path, r.Err)
	}
}

// followUntilDone prints status changes until every job settles. Ctrl+C
// stops following without failing the command.
func followUntilDone(ctx context.Context, sess *session, categories []jobs.Category) error {
	err := follow(ctx, sess.store, categories, os.Stdout, true)
	if errors.Is(err, context.Canceled) {
		fmt.Println("Stopped following.")
		sess.finish(os.Stdout)
		return nil
	}
	return err
}
