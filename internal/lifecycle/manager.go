// Package lifecycle ages knowledge out by TTL and keeps stored vectors
// consistent with the configured embedder. Expiry compares the numeric
// created_at payload field against a per-collection cutoff; reindexing
// re-embeds a collection's text when its recorded embedder signature no
// longer matches the running configuration.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/knowledge"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// signatureMetaKey is where a collection records the embedder that
// produced its vectors.
const signatureMetaKey = "embedder"

// Short names accepted by the cleanup and reindex operations.
const (
	TargetFacts     = "facts"
	TargetFiles     = "files"
	TargetLearnings = "learnings"
	TargetAll       = "all"
)

// CleanupReport counts deletions per collection.
type CleanupReport struct {
	Deleted      map[string]int
	TotalDeleted int
}

// CollectionReindexStatus describes one collection's signature check.
type CollectionReindexStatus struct {
	StoredSignature  string
	CurrentSignature string
	NeedsReindex     bool
}

// ReindexStatus aggregates the signature checks.
type ReindexStatus struct {
	NeedsReindex bool
	Collections  map[string]CollectionReindexStatus
}

// Manager owns TTL expiry and reindexing for the knowledge collections.
type Manager struct {
	collections map[string]vecstore.Index
	encoder     embedding.Encoder
	cfg         *config.Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager opens the managed collections on the given backend.
func NewManager(ctx context.Context, provider vecstore.Provider, encoder embedding.Encoder, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if provider == nil || encoder == nil || cfg == nil {
		return nil, fmt.Errorf("provider, encoder and config are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		collections: make(map[string]vecstore.Index, 3),
		encoder:     encoder,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
	for target, name := range map[string]string{
		TargetFacts:     knowledge.CollectionFacts,
		TargetFiles:     knowledge.CollectionFiles,
		TargetLearnings: knowledge.CollectionLearnings,
	} {
		idx, err := provider.Collection(ctx, name, encoder.Dimension())
		if err != nil {
			return nil, fmt.Errorf("opening collection %q: %w", name, err)
		}
		m.collections[target] = idx
	}
	return m, nil
}

// ExpiredIDs scans one collection for entries older than its TTL. A zero
// or negative TTL disables expiry and returns nothing. Entries without a
// positive numeric created_at never expire.
func (m *Manager) ExpiredIDs(ctx context.Context, target string, ttlDays int) ([]string, error) {
	idx, ok := m.collections[target]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", target)
	}
	if ttlDays <= 0 {
		return nil, nil
	}
	cutoff := float64(m.now().Add(-time.Duration(ttlDays) * 24 * time.Hour).Unix())

	var expired []string
	cursor := ""
	for {
		recs, next, err := idx.Scroll(ctx, nil, 200, cursor)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", target, err)
		}
		for _, rec := range recs {
			created, ok := asFloat(rec.Payload["created_at"])
			if !ok || created <= 0 {
				continue
			}
			if created < cutoff {
				expired = append(expired, rec.ID)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return expired, nil
}

// ExpiredReport counts expired entries per collection without deleting
// anything. The non-destructive preview for CleanupExpired.
func (m *Manager) ExpiredReport(ctx context.Context, target string) (CleanupReport, error) {
	targets := []string{target}
	if target == TargetAll {
		targets = []string{TargetFacts, TargetFiles, TargetLearnings}
	} else if _, ok := m.collections[target]; !ok {
		return CleanupReport{}, fmt.Errorf("unknown collection %q", target)
	}

	report := CleanupReport{Deleted: make(map[string]int, len(targets))}
	for _, t := range targets {
		expired, err := m.ExpiredIDs(ctx, t, m.cfg.TTLDays(t))
		if err != nil {
			return CleanupReport{}, err
		}
		report.Deleted[t] = len(expired)
		report.TotalDeleted += len(expired)
	}
	return report, nil
}

// CleanupExpired deletes expired entries from one collection, or from all
// of them when target is "all". Per-collection failures are logged and
// reported as zero so one broken collection does not stall the sweep.
func (m *Manager) CleanupExpired(ctx context.Context, target string) (CleanupReport, error) {
	targets := []string{target}
	if target == TargetAll {
		targets = []string{TargetFacts, TargetFiles, TargetLearnings}
	} else if _, ok := m.collections[target]; !ok {
		return CleanupReport{}, fmt.Errorf("unknown collection %q", target)
	}

	report := CleanupReport{Deleted: make(map[string]int, len(targets))}
	for _, t := range targets {
		expired, err := m.ExpiredIDs(ctx, t, m.cfg.TTLDays(t))
		if err != nil {
			m.logger.Error("ttl scan failed", "collection", t, "error", err)
			report.Deleted[t] = 0
			continue
		}
		if len(expired) == 0 {
			report.Deleted[t] = 0
			continue
		}
		if err := m.collections[t].Delete(ctx, expired); err != nil {
			m.logger.Error("ttl delete failed", "collection", t, "error", err)
			report.Deleted[t] = 0
			continue
		}
		report.Deleted[t] = len(expired)
		report.TotalDeleted += len(expired)
		m.logger.Info("expired entries removed", "collection", t, "count", len(expired))
	}
	return report, nil
}

// CheckReindexNeeded compares each collection's recorded embedder
// signature with the running one. Collections that never recorded a
// signature are not flagged.
func (m *Manager) CheckReindexNeeded(ctx context.Context) (ReindexStatus, error) {
	status := ReindexStatus{Collections: make(map[string]CollectionReindexStatus, len(m.collections))}
	current := m.encoder.Signature()

	for target, idx := range m.collections {
		meta, err := idx.Meta(ctx)
		if err != nil {
			return ReindexStatus{}, fmt.Errorf("reading meta of %s: %w", target, err)
		}
		stored := meta[signatureMetaKey]
		needs := stored != "" && stored != current
		status.Collections[target] = CollectionReindexStatus{
			StoredSignature:  stored,
			CurrentSignature: current,
			NeedsReindex:     needs,
		}
		if needs {
			status.NeedsReindex = true
		}
	}
	return status, nil
}

// ReindexCollection re-embeds every entry of one collection from its
// stored text and records the new signature. Without force it is a no-op
// unless the signature check flags the collection.
func (m *Manager) ReindexCollection(ctx context.Context, target string, force bool) (int, error) {
	idx, ok := m.collections[target]
	if !ok {
		return 0, fmt.Errorf("unknown collection %q", target)
	}

	if !force {
		status, err := m.CheckReindexNeeded(ctx)
		if err != nil {
			return 0, err
		}
		if !status.Collections[target].NeedsReindex {
			m.logger.Info("reindex not needed", "collection", target)
			return 0, nil
		}
	}

	var updated int
	cursor := ""
	for {
		recs, next, err := idx.Scroll(ctx, nil, 100, cursor)
		if err != nil {
			return updated, fmt.Errorf("scanning %s: %w", target, err)
		}
		for i := range recs {
			text, _ := recs[i].Payload["text"].(string)
			if text == "" {
				continue
			}
			vec, err := m.encoder.Encode(ctx, text)
			if err != nil {
				return updated, fmt.Errorf("re-embedding %s/%s: %w", target, recs[i].ID, err)
			}
			recs[i].Vector = vec
			if err := idx.Upsert(ctx, recs[i:i+1]); err != nil {
				return updated, fmt.Errorf("rewriting %s/%s: %w", target, recs[i].ID, err)
			}
			updated++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if err := idx.SetMeta(ctx, map[string]string{signatureMetaKey: m.encoder.Signature()}); err != nil {
		return updated, fmt.Errorf("recording signature on %s: %w", target, err)
	}
	m.logger.Info("collection reindexed", "collection", target, "entries", updated)
	return updated, nil
}

// ReindexAll reindexes every managed collection, forced or signature-gated.
func (m *Manager) ReindexAll(ctx context.Context, force bool) (int, error) {
	total := 0
	for _, target := range []string{TargetFacts, TargetFiles, TargetLearnings} {
		n, err := m.ReindexCollection(ctx, target, force)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
