// Package app wires the memory engine together.
//
// App is the container that owns every long-lived component: the vector
// backend, the embedding encoder, and the four engines built on top of
// them. Setup constructs the whole graph in dependency order and Close
// releases it in reverse.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/graph"
	"github.com/neo-2022/regart-memory/internal/knowledge"
	"github.com/neo-2022/regart-memory/internal/lifecycle"
	"github.com/neo-2022/regart-memory/internal/skill"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Encoder  embedding.Encoder
	Provider vecstore.Provider

	// Engines
	Knowledge *knowledge.Store
	Graph     *graph.Engine
	Skill     *skill.Engine
	Lifecycle *lifecycle.Manager
	Scheduler *lifecycle.Scheduler

	otelShutdown func(context.Context) error
}

// Close gracefully shuts down all resources in reverse construction order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	var errs []error

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Provider != nil {
		if err := a.Provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
