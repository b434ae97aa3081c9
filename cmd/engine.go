package cmd

import (
	"context"
	"fmt"

	"github.com/neo-2022/regart-memory/internal/app"
	"github.com/neo-2022/regart-memory/internal/config"
)

// setupEngine builds a fully wired App for one-shot subcommands.
// The returned cleanup must be called before the command exits.
func setupEngine(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing engine: %w", err)
	}

	cleanup := func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}
	return a, cleanup, nil
}
