package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [category]",
	Short: "Follow journaled jobs until they finish",
	Long: `Restore jobs from the journal and resume checking their status.

On a terminal the interactive board opens; otherwise one line is printed per
status change until every job has finished.

Board keys:
  tab / shift+tab   switch category
  ↑/↓               select job
  enter             compare original and result
  ←/→ or drag       move the comparison split
  d                 download the result
  x                 remove job
  R                 reset category
  q                 quit (jobs keep processing on the service)

Examples:
  cutout watch
  cutout watch vectorize`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{boardAnnotation: "true"},
	RunE:        runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	categories, err := categoryArgs(args)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.orch.Resume()

	if isTerminal() {
		return runBoard(ctx, sess, categories[0], "")
	}

	total := 0
	for _, c := range categories {
		total += sess.store.Len(c)
	}
	if total == 0 {
		fmt.Println("No jobs found")
		return nil
	}
	return followUntilDone(ctx, sess, categories)
}
