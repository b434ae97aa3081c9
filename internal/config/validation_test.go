package config

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unsupported backend",
			mutate:  func(c *Config) { c.VectorBackend = "weaviate" },
			wantErr: ErrInvalidBackend,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.EmbedderDimension = 0 },
			wantErr: ErrInvalidEmbedderDimension,
		},
		{
			name:    "dimension too large",
			mutate:  func(c *Config) { c.EmbedderDimension = 9000 },
			wantErr: ErrInvalidEmbedderDimension,
		},
		{
			name: "pgvector requires host",
			mutate: func(c *Config) {
				c.VectorBackend = BackendPgvector
				c.PostgresHost = ""
			},
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name: "pgvector requires valid port",
			mutate: func(c *Config) {
				c.VectorBackend = BackendPgvector
				c.PostgresPort = 0
			},
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name: "qdrant requires host",
			mutate: func(c *Config) {
				c.VectorBackend = BackendQdrant
				c.QdrantHost = ""
			},
			wantErr: ErrInvalidQdrantHost,
		},
		{
			name: "qdrant port out of range",
			mutate: func(c *Config) {
				c.VectorBackend = BackendQdrant
				c.QdrantPort = 70000
			},
			wantErr: ErrInvalidQdrantPort,
		},
		{
			name: "memory backend ignores postgres settings",
			mutate: func(c *Config) {
				c.VectorBackend = BackendMemory
				c.PostgresHost = ""
				c.QdrantHost = ""
			},
		},
		{
			name:    "negative rank weight",
			mutate:  func(c *Config) { c.Rank.WeightRelevance = -0.1 },
			wantErr: ErrInvalidRankWeight,
		},
		{
			name:    "zero recency window",
			mutate:  func(c *Config) { c.Rank.RecencyWindowDays = 0 },
			wantErr: ErrInvalidRankWeight,
		},
		{
			name:    "contradiction threshold above one",
			mutate:  func(c *Config) { c.ContradictionThreshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "default confidence out of range",
			mutate:  func(c *Config) { c.Skill.ConfidenceDefault = 1.2 },
			wantErr: ErrInvalidConfidence,
		},
		{
			name:    "negative confidence boost",
			mutate:  func(c *Config) { c.Skill.ConfidenceBoost = -0.01 },
			wantErr: ErrInvalidConfidence,
		},
		{
			name:    "graph depth below one",
			mutate:  func(c *Config) { c.Graph.MaxDepth = 0 },
			wantErr: ErrInvalidGraphLimit,
		},
		{
			name:    "graph neighbors below one",
			mutate:  func(c *Config) { c.Graph.MaxNeighbors = 0 },
			wantErr: ErrInvalidGraphLimit,
		},
		{
			name:    "empty relationship type set",
			mutate:  func(c *Config) { c.Graph.RelationshipTypes = nil },
			wantErr: ErrNoRelationshipTypes,
		},
		{
			name:    "blank relationship type",
			mutate:  func(c *Config) { c.Graph.RelationshipTypes = []string{"relates_to", " "} },
			wantErr: ErrNoRelationshipTypes,
		},
		{
			name:    "negative TTL",
			mutate:  func(c *Config) { c.Lifecycle.FactsTTLDays = -1 },
			wantErr: ErrInvalidTTL,
		},
		{
			name:   "zero TTL means never expire",
			mutate: func(c *Config) { c.Lifecycle.FactsTTLDays = 0 },
		},
		{
			name:    "zero reindex interval",
			mutate:  func(c *Config) { c.Lifecycle.ReindexCheckIntervalSec = 0 },
			wantErr: ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
