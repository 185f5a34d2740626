package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/raphaelgruber/cutout/internal/report"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status [category]",
	Short: "Check every pending job once and list all jobs",
	Long: `Check the status of every queued or running job once, then list the jobs.

Examples:
  cutout status
  cutout status vectorize
  cutout status -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table or yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if statusOutput != "table" && statusOutput != "yaml" {
		return fmt.Errorf("unknown output format %q (want table or yaml)", statusOutput)
	}
	categories, err := categoryArgs(args)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	var list []jobs.Job
	for _, c := range categories {
		sess.orch.PollOnce(ctx, c)
		list = append(list, sess.store.Snapshot(c)...)
	}

	if statusOutput == "yaml" {
		r := report.Report{GeneratedAt: time.Now().UTC(), Jobs: []report.Row{}}
		for _, j := range list {
			r.Jobs = append(r.Jobs, report.RowOf(j))
		}
		return report.WriteYAML(os.Stdout, r)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-18s %-24s %10s  %s\n", "ID", "CATEGORY", "FILE", "SIZE", "STATUS")
	fmt.Println("------------------------------------------------------------------------------------")
	for _, j := range list {
		fmt.Printf("%-10s %-18s %-24s %10s  %s\n", j.ID, j.Category, truncate(j.File.Name, 24), j.File.SizeMB(), j.StatusLine())
		if verbose && j.Phase == jobs.PhaseSucceeded {
			fmt.Printf("  %s\n", j.ResultURL)
		}
	}
	return nil
}
