package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset [category]",
	Short: "Remove every job in a category",
	Long: `Remove every job in a category, or in all categories with --all.

Examples:
  cutout reset vectorize
  cutout reset --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every category")
}

func runReset(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !resetAll {
		return errors.New("specify a category or --all")
	}
	if len(args) > 0 && resetAll {
		return errors.New("--all cannot be combined with a category")
	}
	categories, err := categoryArgs(args)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	for _, c := range categories {
		n := sess.store.Reset(c)
		fmt.Printf("%s: removed %d job(s), %d slot(s) free\n", c, n, sess.store.Remaining(c))
	}
	return nil
}
