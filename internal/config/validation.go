package config

import (
	"fmt"
	"strings"
)

// Validate performs comprehensive configuration validation.
// Called from Load() so a misconfigured process never starts (fail-fast).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.VectorBackend {
	case BackendMemory, BackendPgvector, BackendQdrant:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s, %s)",
			ErrInvalidBackend, c.VectorBackend, BackendMemory, BackendPgvector, BackendQdrant)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 8192 {
		return fmt.Errorf("%w: %d (must be 1-8192)", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if c.VectorBackend == BackendPgvector {
		if strings.TrimSpace(c.PostgresHost) == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
	}

	if c.VectorBackend == BackendQdrant {
		if strings.TrimSpace(c.QdrantHost) == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidQdrantHost)
		}
		if c.QdrantPort < 1 || c.QdrantPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidQdrantPort, c.QdrantPort)
		}
	}

	if err := c.validateRank(); err != nil {
		return err
	}

	if c.ContradictionThreshold < 0 || c.ContradictionThreshold > 1 {
		return fmt.Errorf("%w: contradiction_threshold %.3f", ErrInvalidThreshold, c.ContradictionThreshold)
	}

	if err := c.validateSkill(); err != nil {
		return err
	}

	if err := c.validateGraph(); err != nil {
		return err
	}

	return c.validateLifecycle()
}

func (c *Config) validateRank() error {
	weights := map[string]float64{
		"weight_relevance":   c.Rank.WeightRelevance,
		"weight_importance":  c.Rank.WeightImportance,
		"weight_reliability": c.Rank.WeightReliability,
		"weight_recency":     c.Rank.WeightRecency,
		"weight_frequency":   c.Rank.WeightFrequency,
		"weight_priority":    c.Rank.WeightPriority,
		"blend_semantic":     c.Rank.BlendSemantic,
		"blend_keyword":      c.Rank.BlendKeyword,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: %s = %.3f", ErrInvalidRankWeight, name, w)
		}
	}
	if c.Rank.RecencyWindowDays < 1 {
		return fmt.Errorf("%w: rank.recency_window_days = %d", ErrInvalidRankWeight, c.Rank.RecencyWindowDays)
	}
	return nil
}

func (c *Config) validateSkill() error {
	for name, v := range map[string]float64{
		"confidence_default": c.Skill.ConfidenceDefault,
		"confidence_min":     c.Skill.ConfidenceMin,
		"confidence_boost":   c.Skill.ConfidenceBoost,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: skill.%s = %.3f", ErrInvalidConfidence, name, v)
		}
	}
	if c.Skill.SearchTopK < 1 {
		return fmt.Errorf("%w: skill.search_top_k = %d", ErrInvalidGraphLimit, c.Skill.SearchTopK)
	}
	return nil
}

func (c *Config) validateGraph() error {
	if c.Graph.MaxDepth < 1 {
		return fmt.Errorf("%w: graph.max_depth = %d", ErrInvalidGraphLimit, c.Graph.MaxDepth)
	}
	if c.Graph.MaxNeighbors < 1 {
		return fmt.Errorf("%w: graph.max_neighbors = %d", ErrInvalidGraphLimit, c.Graph.MaxNeighbors)
	}
	if len(c.Graph.RelationshipTypes) == 0 {
		return ErrNoRelationshipTypes
	}
	for _, rt := range c.Graph.RelationshipTypes {
		if strings.TrimSpace(rt) == "" {
			return fmt.Errorf("%w: blank relationship type", ErrNoRelationshipTypes)
		}
	}
	return nil
}

func (c *Config) validateLifecycle() error {
	for name, d := range map[string]int{
		"facts_ttl_days":     c.Lifecycle.FactsTTLDays,
		"files_ttl_days":     c.Lifecycle.FilesTTLDays,
		"learnings_ttl_days": c.Lifecycle.LearningsTTLDays,
	} {
		if d < 0 {
			return fmt.Errorf("%w: lifecycle.%s = %d", ErrInvalidTTL, name, d)
		}
	}
	if c.Lifecycle.ReindexCheckIntervalSec < 1 {
		return fmt.Errorf("%w: lifecycle.reindex_check_interval_sec = %d",
			ErrInvalidInterval, c.Lifecycle.ReindexCheckIntervalSec)
	}
	return nil
}
