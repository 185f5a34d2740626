package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/raphaelgruber/cutout/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportFormat  string
	reportOut     string
	reportRefresh bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export all jobs as YAML or an Excel workbook",
	Long: `Export every journaled job with its status, URLs and timestamps.

YAML is written to stdout unless --out is given. XLSX always needs a file;
it defaults to cutout-report.xlsx and includes a per-category summary sheet.

Examples:
  cutout report
  cutout report --refresh
  cutout report --format xlsx --out jobs.xlsx`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "yaml", "output format: yaml or xlsx")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output file")
	reportCmd.Flags().BoolVar(&reportRefresh, "refresh", false, "check pending jobs once before exporting")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if reportFormat != "yaml" && reportFormat != "xlsx" {
		return fmt.Errorf("unknown format %q (want yaml or xlsx)", reportFormat)
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if reportRefresh {
		for _, c := range jobs.Categories() {
			sess.orch.PollOnce(ctx, c)
		}
	}

	r := report.Build(sess.store, collector, time.Now())

	switch reportFormat {
	case "xlsx":
		data, err := report.XLSX(r)
		if err != nil {
			return fmt.Errorf("build workbook: %w", err)
		}
		out := reportOut
		if out == "" {
			out = "cutout-report.xlsx"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("✓ Wrote %d job(s) to %s\n", len(r.Jobs), out)
		return nil

	default:
		if reportOut == "" {
			return report.WriteYAML(os.Stdout, r)
		}
		f, err := os.Create(reportOut)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		if err := report.WriteYAML(f, r); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("✓ Wrote %d job(s) to %s\n", len(r.Jobs), reportOut)
		return nil
	}
}
