// Package cmd wires the engine's command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "regart-memory",
	Short: "Long-term memory engine for agent stacks",
	Long: `regart-memory stores facts, file chunks, versioned learnings and skills
in a vector backend and retrieves them with composite ranking.

Run 'regart-memory serve' to start the engine with its background
maintenance scheduler, or use the one-shot subcommands (sweep, reindex,
stats) for operational tasks.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
