package rank

import (
	"fmt"
	"testing"
	"time"

	"github.com/neo-2022/regart-memory/internal/config"
)

func testEngine() *Engine {
	return NewEngine(config.Default().Rank)
}

func TestResolvePriorityScore(t *testing.T) {
	tests := []struct {
		tag  string
		want float64
	}{
		{"critical", 1.0},
		{"pinned", 0.85},
		{"reinforced", 0.7},
		{"normal", 0.5},
		{"archived", 0.2},
		{"  Critical  ", 1.0},
		{"PINNED", 0.85},
		{"", 0.5},
		{"bogus", 0.5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("tag=%q", tt.tag), func(t *testing.T) {
			if got := ResolvePriorityScore(tt.tag); got != tt.want {
				t.Errorf("ResolvePriorityScore(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestResolvePriorityScore_Ordering(t *testing.T) {
	order := []string{PriorityArchived, PriorityNormal, PriorityReinforced, PriorityPinned, PriorityCritical}
	for i := 1; i < len(order); i++ {
		lo, hi := ResolvePriorityScore(order[i-1]), ResolvePriorityScore(order[i])
		if lo >= hi {
			t.Errorf("priority %q (%v) should score below %q (%v)", order[i-1], lo, order[i], hi)
		}
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"all tokens present", "port 8080", "the server port is 8080", 1.0},
		{"half present", "port missingword", "the server port is 8080", 0.5},
		{"case folded", "PORT", "the Port is open", 1.0},
		{"substring match", "conf", "configuration file", 1.0},
		{"none present", "xyz", "the server port is 8080", 0.0},
		{"empty query", "", "some text", 0.0},
		{"empty text", "port", "", 0.0},
		{"blank text", "port", "   ", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeywordScore(tt.query, tt.text); got != tt.want {
				t.Errorf("KeywordScore(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
			}
		})
	}
}

func TestBlendRelevance(t *testing.T) {
	e := testEngine()

	// Defaults: semantic 0.7, keyword 0.3.
	got := e.BlendRelevance(1.0, 0.0)
	if got != 0.7 {
		t.Errorf("BlendRelevance(1, 0) = %v, want 0.7", got)
	}
	got = e.BlendRelevance(0.5, 0.5)
	if got != 0.5 {
		t.Errorf("BlendRelevance(0.5, 0.5) = %v, want 0.5", got)
	}

	// Out-of-range inputs are clamped before blending.
	got = e.BlendRelevance(2.0, -1.0)
	if got != 0.7 {
		t.Errorf("BlendRelevance(2, -1) = %v, want 0.7", got)
	}
}

func TestBlendRelevance_ZeroWeightsFallBackToSemantic(t *testing.T) {
	cfg := config.Default().Rank
	cfg.BlendSemantic = 0
	cfg.BlendKeyword = 0
	e := NewEngine(cfg)

	if got := e.BlendRelevance(0.42, 0.9); got != 0.42 {
		t.Errorf("BlendRelevance with zero weights = %v, want semantic 0.42", got)
	}
}

func TestRecencyScore(t *testing.T) {
	cfg := config.Default().Rank
	e := NewEngine(cfg)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	tests := []struct {
		name      string
		createdAt any
		want      float64
	}{
		{"fresh", now.Unix(), 1.0},
		{"half window", now.AddDate(0, 0, -15).Unix(), 0.5},
		{"past window", now.AddDate(0, 0, -60).Unix(), 0.0},
		{"rfc3339 string", now.Add(-24 * time.Hour).Format(time.RFC3339), 1.0 - 1.0/30.0},
		{"missing", nil, 0.5},
		{"empty string", "", 0.5},
		{"garbage string", "not-a-time", 0.5},
		{"zero unix", float64(0), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.RecencyScore(tt.createdAt)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("RecencyScore(%v) = %v, want %v", tt.createdAt, got, tt.want)
			}
		})
	}
}

func TestBuildRankScore_Range(t *testing.T) {
	e := testEngine()

	metas := []map[string]any{
		nil,
		{},
		{"importance": 1.0, "reliability": 1.0, "frequency": 1.0, "priority": "critical", "created_at": float64(time.Now().Unix())},
		{"importance": 0.0, "reliability": 0.0, "frequency": 0.0, "priority": "archived", "created_at": float64(1)},
		{"importance": "not a number", "reliability": []string{"odd"}, "priority": 42},
	}
	for i, meta := range metas {
		for _, rel := range []float64{-1, 0, 0.5, 1, 2} {
			score := e.BuildRankScore(rel, meta)
			if score < 0 || score > 1 {
				t.Errorf("meta[%d], relevance %v: score %v out of [0,1]", i, rel, score)
			}
		}
	}
}

func TestBuildRankScore_NeutralDefaults(t *testing.T) {
	e := testEngine()

	// Absent metadata means every factor sits at 0.5; with weights summing
	// to 1.0 and relevance 0.5 the composite is exactly 0.5.
	if got := e.BuildRankScore(0.5, map[string]any{}); got != 0.5 {
		t.Errorf("BuildRankScore(0.5, empty) = %v, want 0.5", got)
	}

	// Non-numeric scalars fall back to the same neutral value.
	withJunk := e.BuildRankScore(0.5, map[string]any{"importance": "high", "reliability": true})
	if withJunk != 0.5 {
		t.Errorf("BuildRankScore with junk scalars = %v, want 0.5", withJunk)
	}
}

func TestBuildRankScore_Monotonic(t *testing.T) {
	e := testEngine()
	now := float64(time.Now().Unix())

	base := map[string]any{
		"importance":  0.5,
		"reliability": 0.5,
		"frequency":   0.5,
		"priority":    "normal",
		"created_at":  now,
	}
	clone := func(over map[string]any) map[string]any {
		m := make(map[string]any, len(base))
		for k, v := range base {
			m[k] = v
		}
		for k, v := range over {
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name     string
		lo, hi   map[string]any
		relLo    float64
		relHi    float64
	}{
		{"relevance", base, base, 0.2, 0.9},
		{"importance", clone(map[string]any{"importance": 0.1}), clone(map[string]any{"importance": 0.9}), 0.5, 0.5},
		{"reliability", clone(map[string]any{"reliability": 0.1}), clone(map[string]any{"reliability": 0.9}), 0.5, 0.5},
		{"frequency", clone(map[string]any{"frequency": 0.1}), clone(map[string]any{"frequency": 0.9}), 0.5, 0.5},
		{"priority", clone(map[string]any{"priority": "archived"}), clone(map[string]any{"priority": "critical"}), 0.5, 0.5},
		{"recency", clone(map[string]any{"created_at": now - 86400*25}), clone(map[string]any{"created_at": now}), 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo := e.BuildRankScore(tt.relLo, tt.lo)
			hi := e.BuildRankScore(tt.relHi, tt.hi)
			if lo > hi {
				t.Errorf("score not monotonic in %s: lo=%v hi=%v", tt.name, lo, hi)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.5, 0}, // distances past 1 floor at zero similarity
	}
	for _, tt := range tests {
		if got := Similarity(tt.distance); got != tt.want {
			t.Errorf("Similarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}
