package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neo-2022/regart-memory/internal/lifecycle"
)

var (
	sweepCollection string
	sweepDryRun     bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete entries past their TTL",
	Long: `One-shot expiry sweep. Scans the selected collection for entries older
than the configured TTL and deletes them. A TTL of zero disables expiry
for that collection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd, sweepCollection, sweepDryRun)
	},
}

func init() {
	sweepCmd.Flags().StringVarP(&sweepCollection, "collection", "c", lifecycle.TargetAll,
		"collection to sweep: facts, files, learnings or all")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false,
		"count expired entries without deleting them")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, target string, dryRun bool) error {
	a, cleanup, err := setupEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	var report lifecycle.CleanupReport
	if dryRun {
		report, err = a.Lifecycle.ExpiredReport(cmd.Context(), target)
	} else {
		report, err = a.Lifecycle.CleanupExpired(cmd.Context(), target)
	}
	if err != nil {
		return fmt.Errorf("sweeping %s: %w", target, err)
	}

	verb := "deleted"
	if dryRun {
		verb = "expired"
	}
	for name, n := range report.Deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s\n", name, n, verb)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total: %d %s\n", report.TotalDeleted, verb)
	return nil
}
