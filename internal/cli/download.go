package cli

import (
	"fmt"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/spf13/cobra"
)

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Save a finished job's result",
	Long: `Download the result of a finished job. The file is named after the
source image with the category's extension (.png or .svg).

Examples:
  cutout download a1b2c3d4
  cutout download a1b2c3d4 --dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadDir, "dir", ".", "directory to write the result into")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	job, ok := sess.store.Get(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Phase.Pollable() {
		// One fresh check in case it finished since the last run
		sess.orch.PollOnce(ctx, job.Category)
		job, _ = sess.store.Get(id)
	}
	if job.Phase != jobs.PhaseSucceeded {
		return fmt.Errorf("job %s is not done: %s", id, job.StatusLine())
	}

	path, err := sess.orch.Download(ctx, id, downloadDir)
	if err != nil {
		fmt.Printf("The result is still available at %s\n", job.ResultURL)
		return err
	}
	fmt.Printf("✓ Saved %s\n", path)
	return nil
}
