package cli

import (
	"fmt"

	"github.com/raphaelgruber/cutout/internal/journal"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying the config file and CUTOUT_*
environment variables.

Examples:
  cutout config
  CUTOUT_API_URL=https://images.example.com cutout config`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	file := cfg.File
	if file == "" {
		file = "(none)"
	}

	fmt.Printf("Config file:     %s\n", file)
	fmt.Printf("API URL:         %s\n", cfg.APIURL)
	fmt.Printf("Client timeout:  %s\n", cfg.ClientTimeout)
	fmt.Printf("Poll interval:   %s\n", cfg.PollInterval)
	fmt.Printf("Max images:      %d per category\n", cfg.MaxImages)
	fmt.Printf("Max file size:   %.0f MB\n", float64(cfg.MaxFileSize)/1024/1024)
	fmt.Printf("Vectorize scale: %d\n", cfg.Scale)
	fmt.Printf("Enhance before:  %t\n", cfg.EnhanceBefore)
	backend := journal.Backend(cfg.Journal)
	if backend == journal.BackendNone {
		fmt.Printf("Journal:         disabled\n")
	} else {
		fmt.Printf("Journal:         %s (%s)\n", cfg.Journal, backend)
	}
	if backend == journal.BackendSurreal {
		fmt.Printf("  Namespace:     %s\n", cfg.JournalNamespace)
		fmt.Printf("  Database:      %s\n", cfg.JournalDatabase)
		fmt.Printf("  User:          %s\n", cfg.JournalUser)
	}
	fmt.Printf("Log file:        %s\n", cfg.LogFile)
	fmt.Printf("Log level:       %s\n", cfg.LogLevel)
	return nil
}
