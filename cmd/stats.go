package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection sizes and learning breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command) error {
	a, cleanup, err := setupEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()

	stats, err := a.Knowledge.GetStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading store stats: %w", err)
	}
	fmt.Fprintf(out, "facts:     %d\n", stats.Facts)
	fmt.Fprintf(out, "files:     %d\n", stats.Files)
	fmt.Fprintf(out, "learnings: %d\n", stats.Learnings)

	learned, err := a.Knowledge.GetLearningStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading learning stats: %w", err)
	}
	if learned.Total > 0 {
		fmt.Fprintln(out, "\nlearnings by model:")
		printCounts(cmd, learned.ByModel)
		fmt.Fprintln(out, "learnings by category:")
		printCounts(cmd, learned.ByCategory)
	}

	return nil
}

func printCounts(cmd *cobra.Command, counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", k, counts[k])
	}
}
