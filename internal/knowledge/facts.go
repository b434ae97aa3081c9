package knowledge

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/rank"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// AddFact stores one fact. Blank or oversized text returns the empty-id
// sentinel without an error; this is the historical contract of the add
// operations and is not extended to new operations.
func (s *Store) AddFact(ctx context.Context, text string, meta EntryMeta) (string, error) {
	text, ok := s.validateText(text, "fact")
	if !ok {
		return "", nil
	}
	if err := meta.Validate(); err != nil {
		return "", err
	}

	vec, err := s.encoder.Encode(ctx, text)
	if err != nil {
		return "", err
	}

	meta.Status = StatusActive
	meta.CreatedAt = s.now()
	id := uuid.NewString()

	err = s.facts.Upsert(ctx, []vecstore.Record{{
		ID:      id,
		Vector:  vec,
		Payload: payloadFromMeta(text, meta),
	}})
	if err != nil {
		return "", err
	}

	s.appendAudit(ctx, AuditEvent{
		Type:      "fact_added",
		Workspace: meta.Workspace,
		EntryID:   id,
		Details:   truncate(text, 80),
	})
	s.logger.Info("fact added", "id", id, "text", truncate(text, 50))
	return id, nil
}

// SearchFacts retrieves ranked facts, optionally extended across file
// chunks with WithFiles. Backend faults degrade to an empty result.
func (s *Store) SearchFacts(ctx context.Context, query string, opts ...SearchOption) []SearchResult {
	cfg := buildSearchConfig(s.cfg.TopK, opts)
	start := s.now()

	vec, err := s.encoder.Encode(ctx, query)
	if err != nil {
		s.logger.Error("embedding search query failed", "error", err)
		s.metrics.RecordError()
		return nil
	}

	filter := vecstore.Filter{keyStatus: string(StatusActive)}
	if cfg.workspace != "" {
		filter[keyWorkspace] = cfg.workspace
	}
	if cfg.agent != "" {
		filter[keyAgent] = cfg.agent
	}
	if cfg.category != "" {
		filter[keyCategory] = cfg.category
	}

	results := s.searchCollection(ctx, s.facts, "facts", vec, query, cfg.topK, filter)
	if cfg.includeFiles {
		results = append(results, s.searchCollection(ctx, s.files, "files", vec, query, cfg.topK, filter)...)
	}

	results = finalizeResults(results, cfg.minPriority)
	s.metrics.RecordSearch(s.now().Sub(start), len(results))
	return results
}

// GetStats counts entries per collection.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, c := range []struct {
		idx vecstore.Index
		dst *int64
	}{
		{s.facts, &stats.Facts},
		{s.files, &stats.Files},
		{s.learnings, &stats.Learnings},
	} {
		n, err := c.idx.Count(ctx, nil)
		if err != nil {
			return Stats{}, err
		}
		*c.dst = n
	}
	return stats, nil
}

// searchCollection runs one similarity query and scores each hit. Entries
// whose status is not active are dropped even if the backend filter let
// them through. Backend errors are logged and yield no results.
func (s *Store) searchCollection(ctx context.Context, idx vecstore.Index, source string, vec []float32, query string, topK int, filter vecstore.Filter) []SearchResult {
	hits, err := idx.Query(ctx, vec, topK, filter)
	if err != nil {
		s.logger.Error("similarity query failed", "source", source, "error", err)
		s.metrics.RecordError()
		return nil
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		text, meta := metaFromPayload(hit.Payload)
		if meta.Status != StatusActive {
			continue
		}

		similarity := rank.Similarity(hit.Distance)
		relevance := s.ranker.BlendRelevance(similarity, rank.KeywordScore(query, text))
		results = append(results, SearchResult{
			ID:         hit.ID,
			Text:       text,
			Score:      s.ranker.BuildRankScore(relevance, hit.Payload),
			Similarity: similarity,
			Source:     source,
			Meta:       meta,
		})
	}
	return results
}

// finalizeResults merges per-collection hits: dedupe by text, apply the
// minimum-priority cutoff, sort by descending composite score.
func finalizeResults(results []SearchResult, minPriority string) []SearchResult {
	if minPriority != "" {
		cutoff := rank.ResolvePriorityScore(minPriority)
		kept := results[:0]
		for _, r := range results {
			if rank.ResolvePriorityScore(r.Meta.Priority) >= cutoff {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	seen := make(map[string]struct{}, len(results))
	unique := results[:0]
	for _, r := range results {
		if _, dup := seen[r.Text]; dup {
			continue
		}
		seen[r.Text] = struct{}{}
		unique = append(unique, r)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Score > unique[j].Score
	})
	return unique
}
