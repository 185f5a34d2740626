package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <job-id>...",
	Aliases: []string{"rm"},
	Short:   "Remove jobs",
	Long: `Remove jobs from the board and the journal. A status check still in
flight for a removed job is ignored when it returns.

Examples:
  cutout remove a1b2c3d4
  cutout rm a1b2c3d4 e5f6a7b8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	var failed int
	for _, id := range args {
		job, err := sess.store.Remove(id)
		if err != nil {
			fmt.Printf("✗ %v\n", err)
			failed++
			continue
		}
		fmt.Printf("✓ Removed %s (%s)\n", job.ID, job.File.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) not removed", failed, len(args))
	}
	return nil
}
