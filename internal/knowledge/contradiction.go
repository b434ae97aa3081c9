package knowledge

import (
	"context"

	"github.com/neo-2022/regart-memory/internal/rank"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// detectContradictions finds active learnings of the same model and
// workspace that sit above the similarity threshold yet differ in
// normalized text. Every failure path degrades to "no contradictions";
// detection must never block a write.
func (s *Store) detectContradictions(ctx context.Context, vec []float32, text, model, workspace, excludeID string) []Contradiction {
	if s.cfg.ContradictionThreshold <= 0 {
		return nil
	}

	count, err := s.learnings.Count(ctx, nil)
	if err != nil {
		s.logger.Warn("contradiction check skipped, count failed", "error", err)
		return nil
	}
	if count == 0 {
		return nil
	}

	filter := vecstore.Filter{
		keyStatus: string(StatusActive),
		keyModel:  model,
	}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}

	hits, err := s.learnings.Query(ctx, vec, s.cfg.ContradictionTopK, filter)
	if err != nil {
		s.logger.Warn("contradiction check skipped, query failed", "error", err)
		return nil
	}

	normalized := NormalizeText(text)
	var found []Contradiction
	for _, hit := range hits {
		if hit.ID == excludeID {
			continue
		}
		similarity := rank.Similarity(hit.Distance)
		if similarity < s.cfg.ContradictionThreshold {
			continue
		}
		hitText, meta := metaFromPayload(hit.Payload)
		if NormalizeText(hitText) == normalized {
			// Same statement restated, not a contradiction.
			continue
		}
		found = append(found, Contradiction{
			ID:          hit.ID,
			Text:        hitText,
			Similarity:  similarity,
			LearningKey: meta.LearningKey,
		})
	}

	if len(found) > 0 {
		s.logger.Warn("contradicting learnings detected",
			"model", model, "workspace", workspace, "count", len(found))
	}
	return found
}
