// Package rank turns raw similarity scores and entry metadata into a single
// composite retrieval score.
//
// The composite blends semantic similarity with keyword overlap, then folds
// in importance, reliability, recency, usage frequency and the priority tag.
// Every metadata-derived factor degrades to a neutral 0.5 when missing or
// malformed, so a sparse payload never sinks an otherwise relevant entry.
package rank

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/neo-2022/regart-memory/internal/config"
)

// Priority tags, strongest first. Unknown tags resolve to PriorityNormal.
const (
	PriorityCritical   = "critical"
	PriorityPinned     = "pinned"
	PriorityReinforced = "reinforced"
	PriorityNormal     = "normal"
	PriorityArchived   = "archived"
)

// priorityScores is the ordered tag table. Normal sits at the neutral 0.5 so
// an untagged entry scores the same as one tagged "normal".
var priorityScores = map[string]float64{
	PriorityCritical:   1.0,
	PriorityPinned:     0.85,
	PriorityReinforced: 0.7,
	PriorityNormal:     0.5,
	PriorityArchived:   0.2,
}

// Engine computes composite scores from configured weights.
type Engine struct {
	cfg config.RankConfig
	now func() time.Time
}

// NewEngine creates a ranking engine with the given weights.
func NewEngine(cfg config.RankConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// ResolvePriorityScore maps a priority tag to its score. Matching is
// case-insensitive and whitespace-trimmed; an unknown or empty tag resolves
// to the normal score rather than an error.
func ResolvePriorityScore(tag string) float64 {
	if score, ok := priorityScores[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return score
	}
	return priorityScores[PriorityNormal]
}

// KeywordScore returns the fraction of query tokens found as substrings in
// text. Tokens are case-folded and whitespace-split. An empty query or text
// scores 0.
func KeywordScore(query, text string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || strings.TrimSpace(text) == "" {
		return 0
	}
	lower := strings.ToLower(text)

	var found int
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			found++
		}
	}
	return float64(found) / float64(len(tokens))
}

// BlendRelevance merges semantic similarity and keyword overlap using the
// configured blend weights. Zero weights on both sides fall back to the
// semantic score alone.
func (e *Engine) BlendRelevance(semantic, keyword float64) float64 {
	semantic = clamp01(semantic)
	keyword = clamp01(keyword)

	total := e.cfg.BlendSemantic + e.cfg.BlendKeyword
	if total <= 0 {
		return round4(semantic)
	}
	blended := (semantic*e.cfg.BlendSemantic + keyword*e.cfg.BlendKeyword) / total
	return round4(clamp01(blended))
}

// RecencyScore maps an entry age to [0, 1]: 1 at creation, linearly down to
// 0 at the configured window. Missing or unparsable timestamps score the
// neutral 0.5. Accepted forms: unix seconds (numeric) or RFC 3339 strings.
func (e *Engine) RecencyScore(createdAt any) float64 {
	created, ok := parseTimestamp(createdAt)
	if !ok {
		return 0.5
	}

	ageDays := math.Max(e.now().Sub(created).Hours()/24, 0)
	window := math.Max(float64(e.cfg.RecencyWindowDays), 1)
	return clamp01(1 - ageDays/window)
}

// BuildRankScore computes the composite score for one candidate.
//
// composite = relevance*w_rel + importance*w_imp + reliability*w_rely
// + recency*w_rec + frequency*w_freq + priority*w_prio, clamped to [0, 1]
// and rounded to 4 decimals. Monotonic non-decreasing in every factor.
func (e *Engine) BuildRankScore(relevance float64, metadata map[string]any) float64 {
	relevance = clamp01(relevance)
	importance := clamp01(safeFloat(metadata["importance"], 0.5))
	reliability := clamp01(safeFloat(metadata["reliability"], 0.5))
	frequency := clamp01(safeFloat(metadata["frequency"], 0.5))
	recency := e.RecencyScore(metadata["created_at"])
	priority, _ := metadata["priority"].(string)

	total := relevance*e.cfg.WeightRelevance +
		importance*e.cfg.WeightImportance +
		reliability*e.cfg.WeightReliability +
		recency*e.cfg.WeightRecency +
		frequency*e.cfg.WeightFrequency +
		ResolvePriorityScore(priority)*e.cfg.WeightPriority

	return round4(clamp01(total))
}

// Similarity converts a backend distance to a similarity in [0, 1].
func Similarity(distance float64) float64 {
	return math.Max(0, 1-distance)
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int:
		return time.Unix(int64(t), 0), true
	case int64:
		return time.Unix(t, 0), true
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if sec, err := strconv.ParseFloat(t, 64); err == nil && sec > 0 {
			return time.Unix(int64(sec), 0), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// safeFloat coerces arbitrary payload values to float64, shielding the
// scorer from malformed metadata.
func safeFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
		return fallback
	default:
		return fallback
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
