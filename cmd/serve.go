package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neo-2022/regart-memory/internal/app"
	"github.com/neo-2022/regart-memory/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the background maintenance scheduler",
	Long: `Starts all engines and the lifecycle scheduler, which sweeps expired
entries and checks embedder signatures on a fixed interval. Runs until
interrupted (SIGINT/SIGTERM).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	a.Scheduler.Start(ctx)
	a.Logger.Info("serving", "version", AppVersion)

	<-ctx.Done()
	a.Logger.Info("signal received, shutting down")
	return nil
}
