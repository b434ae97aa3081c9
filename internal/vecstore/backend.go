package vecstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/database"
)

// Open resolves the configured backend to a Provider.
//
// An unsupported backend name is rejected here and in config validation;
// there is no silent fallback to a different store.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.VectorBackend {
	case config.BackendMemory:
		logger.Info("using in-process vector store")
		return NewMemoryProvider(), nil

	case config.BackendPgvector:
		pool, err := database.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("opening pgvector backend: %w", err)
		}
		logger.Info("using pgvector backend",
			"host", cfg.PostgresHost, "port", cfg.PostgresPort, "db", cfg.PostgresDBName)
		return NewPgvectorProvider(pool)

	case config.BackendQdrant:
		provider, err := NewQdrantProvider(QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("opening qdrant backend: %w", err)
		}
		logger.Info("using qdrant backend", "host", cfg.QdrantHost, "port", cfg.QdrantPort)
		return provider, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.VectorBackend)
	}
}
