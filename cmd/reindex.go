package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neo-2022/regart-memory/internal/lifecycle"
)

var (
	reindexCollection string
	reindexForce      bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed collections whose embedder signature changed",
	Long: `Compares each collection's stored embedder signature against the
configured embedder and re-embeds every entry on mismatch. Use --force
to re-embed regardless of signature, e.g. after an in-place model fix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReindex(cmd, reindexCollection, reindexForce)
	},
}

func init() {
	reindexCmd.Flags().StringVarP(&reindexCollection, "collection", "c", lifecycle.TargetAll,
		"collection to reindex: facts, files, learnings or all")
	reindexCmd.Flags().BoolVar(&reindexForce, "force", false,
		"re-embed even when signatures match")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, target string, force bool) error {
	a, cleanup, err := setupEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := a.Lifecycle.CheckReindexNeeded(cmd.Context())
	if err != nil {
		return fmt.Errorf("checking signatures: %w", err)
	}
	for name, cs := range status.Collections {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: stored=%q current=%q needs_reindex=%v\n",
			name, cs.StoredSignature, cs.CurrentSignature, cs.NeedsReindex)
	}

	var reindexed int
	if target == lifecycle.TargetAll {
		reindexed, err = a.Lifecycle.ReindexAll(cmd.Context(), force)
	} else {
		reindexed, err = a.Lifecycle.ReindexCollection(cmd.Context(), target, force)
	}
	if err != nil {
		return fmt.Errorf("reindexing %s: %w", target, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "reindexed: %d entries\n", reindexed)
	return nil
}
