package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neo-2022/regart-memory/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return runVersion(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "regart-memory %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Backend: %s\n", cfg.VectorBackend)
	fmt.Fprintf(out, "  Embedder: %s (dim %d)\n", cfg.EmbedderModel, cfg.EmbedderDimension)
	fmt.Fprintf(out, "  Top K: %d\n", cfg.TopK)
	fmt.Fprintf(out, "  Contradiction threshold: %.2f\n", cfg.ContradictionThreshold)

	// Check API Key from environment (don't display full content)
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if len(geminiKey) >= 8 {
		fmt.Fprintf(out, "  GEMINI_API_KEY: %s...%s (configured)\n",
			geminiKey[:4], geminiKey[len(geminiKey)-4:])
	} else if geminiKey != "" {
		fmt.Fprintln(out, "  GEMINI_API_KEY: configured")
	} else {
		fmt.Fprintln(out, "  GEMINI_API_KEY: Not set")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Hint: set GEMINI_API_KEY before running serve")
		fmt.Fprintln(out, "  export GEMINI_API_KEY=your-api-key")
	}

	return nil
}
