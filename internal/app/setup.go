package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/graph"
	"github.com/neo-2022/regart-memory/internal/knowledge"
	"github.com/neo-2022/regart-memory/internal/lifecycle"
	"github.com/neo-2022/regart-memory/internal/log"
	"github.com/neo-2022/regart-memory/internal/observability"
	"github.com/neo-2022/regart-memory/internal/skill"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing registers a span processor on Genkit's TracerProvider, so it
	// must run before genkit.Init.
	otelShutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	a.otelShutdown = otelShutdown

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	encoder, err := embedding.NewGemini(g, cfg.EmbedderModel, cfg.EmbedderModelVersion, cfg.EmbedderDimension)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.Encoder = encoder

	if err := a.wire(ctx, encoder); err != nil {
		return nil, err
	}

	logger.Info("memory engine ready",
		"backend", cfg.VectorBackend,
		"embedder", cfg.EmbedderModel,
		"dimension", cfg.EmbedderDimension,
	)

	return a, nil
}

// provideGenkit initializes Genkit with the Gemini plugin.
// Embedding requests authenticate via GEMINI_API_KEY.
func provideGenkit(ctx context.Context, logger *slog.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini plugin")
	}
	logger.Debug("genkit initialized", "plugin", "googlegenai")
	return g, nil
}

// wire opens the vector backend and builds the engines on top of it.
// Split out from Setup so tests can compose an App around a fake encoder
// without touching Genkit or the network.
func (a *App) wire(ctx context.Context, encoder embedding.Encoder) error {
	cfg, logger := a.Config, a.Logger

	provider, err := vecstore.Open(ctx, cfg, logger.With("component", "vecstore"))
	if err != nil {
		return fmt.Errorf("opening vector backend: %w", err)
	}
	a.Provider = provider

	store, err := knowledge.NewStore(ctx, provider, encoder, cfg, logger.With("component", "knowledge"))
	if err != nil {
		return fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Knowledge = store

	graphEngine, err := graph.NewEngine(ctx, provider, encoder, cfg.Graph, logger.With("component", "graph"))
	if err != nil {
		return fmt.Errorf("creating graph engine: %w", err)
	}
	a.Graph = graphEngine

	skillEngine, err := skill.NewEngine(ctx, provider, encoder, cfg.Skill, logger.With("component", "skill"))
	if err != nil {
		return fmt.Errorf("creating skill engine: %w", err)
	}
	a.Skill = skillEngine

	manager, err := lifecycle.NewManager(ctx, provider, encoder, cfg, logger.With("component", "lifecycle"))
	if err != nil {
		return fmt.Errorf("creating lifecycle manager: %w", err)
	}
	a.Lifecycle = manager
	a.Scheduler = lifecycle.NewScheduler(manager, logger.With("component", "lifecycle"))

	return nil
}
