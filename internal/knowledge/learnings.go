package knowledge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// LearningVersion is one entry in a learning's version chain.
type LearningVersion struct {
	ID               string
	Text             string
	Version          int
	Status           Status
	CreatedAt        time.Time
	SupersededAt     time.Time
	SupersededBy     string
	ConflictDetected bool
}

// AddLearning stores a per-model learning, superseding the current active
// version of the same learning key if one exists.
//
// Blank or oversized text returns a result with an empty ID and no error
// (legacy add contract). Contradiction detection is best-effort: its
// failures are logged and never block the write.
func (s *Store) AddLearning(ctx context.Context, text, model, agent, category, workspace string, extra map[string]string) (AddLearningResult, error) {
	text, ok := s.validateText(text, "learning")
	if !ok {
		return AddLearningResult{}, nil
	}
	category = s.normalizeCategory(category)

	meta := EntryMeta{
		Workspace:   workspace,
		Model:       model,
		Agent:       agent,
		Category:    category,
		LearningKey: LearningKey(workspace, model, category),
		Extra:       extra,
	}
	if err := meta.Validate(); err != nil {
		return AddLearningResult{}, err
	}

	vec, err := s.encoder.Encode(ctx, text)
	if err != nil {
		return AddLearningResult{}, fmt.Errorf("embedding learning: %w", err)
	}

	// Same-key writes are serialized in this process. The version chain
	// still has no cross-process guard; see DESIGN.md.
	lock := s.keyLock(meta.LearningKey)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.activeVersion(ctx, meta.LearningKey)
	if err != nil {
		return AddLearningResult{}, fmt.Errorf("looking up active version: %w", err)
	}

	result := AddLearningResult{
		ID:          uuid.NewString(),
		Version:     1,
		LearningKey: meta.LearningKey,
	}
	excludeID := ""
	if current != nil {
		currentText, currentMeta := metaFromPayload(current.Payload)
		result.Version = currentMeta.Version + 1
		result.PreviousVersionID = current.ID
		result.ConflictDetected = NormalizeText(currentText) != NormalizeText(text)
		excludeID = current.ID
	}

	result.Contradictions = s.detectContradictions(ctx, vec, text, model, workspace, excludeID)

	if current != nil {
		err = s.learnings.UpdatePayload(ctx, current.ID, map[string]any{
			keyStatus:       string(StatusSuperseded),
			keySupersededAt: float64(s.now().Unix()),
			keySupersededBy: result.ID,
		})
		if err != nil {
			return AddLearningResult{}, fmt.Errorf("superseding %s: %w", current.ID, err)
		}
		s.appendAudit(ctx, AuditEvent{
			Type:      "learning_superseded",
			Model:     model,
			Workspace: workspace,
			EntryID:   current.ID,
			Details:   fmt.Sprintf("superseded by %s (version %d)", result.ID, result.Version),
		})
	}

	meta.Status = StatusActive
	meta.Version = result.Version
	meta.CreatedAt = s.now()
	meta.ConflictDetected = result.ConflictDetected
	meta.PreviousVersionID = result.PreviousVersionID
	meta.Contradictions = result.Contradictions

	err = s.learnings.Upsert(ctx, []vecstore.Record{{
		ID:      result.ID,
		Vector:  vec,
		Payload: payloadFromMeta(text, meta),
	}})
	if err != nil {
		return AddLearningResult{}, fmt.Errorf("writing learning: %w", err)
	}

	s.appendAudit(ctx, AuditEvent{
		Type:      "learning_added",
		Model:     model,
		Workspace: workspace,
		EntryID:   result.ID,
		Details:   fmt.Sprintf("version %d, category %s: %s", result.Version, category, truncate(text, 80)),
	})
	s.logger.Info("learning added",
		"id", result.ID, "model", model, "category", category,
		"version", result.Version, "conflict", result.ConflictDetected,
		"contradictions", len(result.Contradictions))
	return result, nil
}

// activeVersion finds the single active entry for a learning key, nil when
// the key has no versions yet.
func (s *Store) activeVersion(ctx context.Context, learningKey string) (*vecstore.Record, error) {
	recs, _, err := s.learnings.Scroll(ctx, vecstore.Filter{
		keyLearningKey: learningKey,
		keyStatus:      string(StatusActive),
	}, 2, "")
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if len(recs) > 1 {
		// Concurrent writers can leave a duplicate active version; pick
		// the highest and let it win the chain.
		s.logger.Warn("multiple active versions for learning key", "learning_key", learningKey)
		sort.Slice(recs, func(i, j int) bool {
			return payloadInt(recs[i].Payload[keyVersion]) > payloadInt(recs[j].Payload[keyVersion])
		})
	}
	return &recs[0], nil
}

// SearchLearnings retrieves ranked learnings for one model.
func (s *Store) SearchLearnings(ctx context.Context, query, model string, opts ...SearchOption) []SearchResult {
	cfg := buildSearchConfig(s.cfg.TopK, opts)
	start := s.now()

	vec, err := s.encoder.Encode(ctx, query)
	if err != nil {
		s.logger.Error("embedding search query failed", "error", err)
		s.metrics.RecordError()
		return nil
	}

	filter := vecstore.Filter{
		keyStatus: string(StatusActive),
		keyModel:  model,
	}
	if cfg.workspace != "" {
		filter[keyWorkspace] = cfg.workspace
	}
	if cfg.category != "" {
		filter[keyCategory] = cfg.category
	}

	results := finalizeResults(
		s.searchCollection(ctx, s.learnings, "learnings", vec, query, cfg.topK, filter),
		cfg.minPriority)
	s.metrics.RecordSearch(s.now().Sub(start), len(results))
	return results
}

// ListVersions returns the full version chain for one logical learning,
// oldest first.
func (s *Store) ListVersions(ctx context.Context, workspace, model, category string) ([]LearningVersion, error) {
	key := LearningKey(workspace, model, s.normalizeCategory(category))

	var versions []LearningVersion
	cursor := ""
	for {
		recs, next, err := s.learnings.Scroll(ctx, vecstore.Filter{keyLearningKey: key}, 100, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing versions of %s: %w", key, err)
		}
		for _, rec := range recs {
			text, meta := metaFromPayload(rec.Payload)
			versions = append(versions, LearningVersion{
				ID:               rec.ID,
				Text:             text,
				Version:          meta.Version,
				Status:           meta.Status,
				CreatedAt:        meta.CreatedAt,
				SupersededAt:     meta.SupersededAt,
				SupersededBy:     meta.SupersededBy,
				ConflictDetected: meta.ConflictDetected,
			})
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version < versions[j].Version
	})
	return versions, nil
}

// DeleteModelLearnings soft-deletes the active learnings of one model,
// optionally narrowed by category or workspace. Entries already superseded
// or deleted are skipped, so repeated calls report zero.
func (s *Store) DeleteModelLearnings(ctx context.Context, model, category, workspace string) (int, error) {
	filter := vecstore.Filter{
		keyModel:  model,
		keyStatus: string(StatusActive),
	}
	if category != "" {
		filter[keyCategory] = category
	}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}

	var deleted int
	cursor := ""
	for {
		recs, next, err := s.learnings.Scroll(ctx, filter, 100, cursor)
		if err != nil {
			return deleted, fmt.Errorf("listing learnings of model %s: %w", model, err)
		}
		for _, rec := range recs {
			err := s.learnings.UpdatePayload(ctx, rec.ID, map[string]any{
				keyStatus: string(StatusDeleted),
			})
			if err != nil {
				return deleted, fmt.Errorf("deleting learning %s: %w", rec.ID, err)
			}
			deleted++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if deleted > 0 {
		s.appendAudit(ctx, AuditEvent{
			Type:      "learnings_deleted",
			Model:     model,
			Workspace: workspace,
			Details:   fmt.Sprintf("%d learnings soft-deleted (category %q)", deleted, category),
		})
		s.logger.Info("model learnings deleted", "model", model, "count", deleted)
	}
	return deleted, nil
}

// GetLearningStats breaks the learnings collection down by model and
// category for monitoring.
func (s *Store) GetLearningStats(ctx context.Context) (LearningStats, error) {
	stats := LearningStats{
		ByModel:    make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	cursor := ""
	for {
		recs, next, err := s.learnings.Scroll(ctx, nil, 200, cursor)
		if err != nil {
			return LearningStats{}, fmt.Errorf("scanning learnings: %w", err)
		}
		for _, rec := range recs {
			_, meta := metaFromPayload(rec.Payload)
			stats.Total++
			model := meta.Model
			if model == "" {
				model = "unknown"
			}
			category := meta.Category
			if category == "" {
				category = "general"
			}
			stats.ByModel[model]++
			stats.ByCategory[category]++
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return stats, nil
}
