package knowledge

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

func newTestStore(t *testing.T) (*Store, *embedding.Deterministic) {
	t.Helper()
	enc := embedding.NewDeterministic(4)
	provider := vecstore.NewMemoryProvider()
	store, err := NewStore(context.Background(), provider, enc, config.Default(), testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, enc
}

func TestAddFactSentinel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
	}{
		{"blank", "   "},
		{"empty", ""},
		{"oversized", strings.Repeat("a", MaxTextBytes+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := store.AddFact(ctx, tt.text, EntryMeta{})
			if err != nil {
				t.Fatalf("AddFact: %v", err)
			}
			if id != "" {
				t.Errorf("id = %q, want empty sentinel", id)
			}
		})
	}
}

func TestAddFactStripsNUL(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddFact(ctx, "hello\x00world", EntryMeta{})
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	results := store.SearchFacts(ctx, "helloworld")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != id {
		t.Errorf("id = %q, want %q", results[0].ID, id)
	}
	if results[0].Text != "helloworld" {
		t.Errorf("text = %q, want NUL stripped", results[0].Text)
	}
}

func TestAddFactRejectsBadMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	bad := 1.5
	if _, err := store.AddFact(ctx, "text", EntryMeta{Importance: &bad}); err == nil {
		t.Error("out-of-range importance accepted")
	}

	extra := make(map[string]string)
	for i := 0; i < maxExtraKeys+1; i++ {
		extra[strings.Repeat("k", i+1)] = "v"
	}
	if _, err := store.AddFact(ctx, "text", EntryMeta{Extra: extra}); err == nil {
		t.Error("oversized extra map accepted")
	}
}

func TestSearchFactsWorkspaceScope(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddFact(ctx, "alpha release notes", EntryMeta{Workspace: "ws1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddFact(ctx, "beta release notes", EntryMeta{Workspace: "ws2"}); err != nil {
		t.Fatal(err)
	}

	results := store.SearchFacts(ctx, "release notes", WithWorkspace("ws1"))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Meta.Workspace != "ws1" {
		t.Errorf("workspace = %q, want ws1", results[0].Meta.Workspace)
	}
}

func TestSearchFactsDedupesByText(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.AddFact(ctx, "duplicate statement", EntryMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	results := store.SearchFacts(ctx, "duplicate statement")
	if len(results) != 1 {
		t.Errorf("got %d results, want duplicates collapsed to 1", len(results))
	}
}

func TestSearchFactsMinPriority(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddFact(ctx, "pinned note", EntryMeta{Priority: "pinned"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddFact(ctx, "archived note", EntryMeta{Priority: "archived"}); err != nil {
		t.Fatal(err)
	}

	results := store.SearchFacts(ctx, "note", WithMinPriority("normal"))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Meta.Priority != "pinned" {
		t.Errorf("priority = %q, want pinned", results[0].Meta.Priority)
	}
}

func TestSearchRecordsMetrics(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddFact(ctx, "metric fodder", EntryMeta{}); err != nil {
		t.Fatal(err)
	}
	store.SearchFacts(ctx, "metric fodder")
	store.SearchFacts(ctx, "metric fodder")

	snap := store.Metrics().Snapshot()
	if snap.Requests != 2 {
		t.Errorf("requests = %d, want 2", snap.Requests)
	}
	if snap.TotalResults != 2 {
		t.Errorf("total results = %d, want 2", snap.TotalResults)
	}
	if snap.Errors != 0 {
		t.Errorf("errors = %d, want 0", snap.Errors)
	}
}

func TestSearchLatencyUsesInjectedClock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddFact(ctx, "timed fact", EntryMeta{}); err != nil {
		t.Fatal(err)
	}

	// Advance a stub clock a fixed step per call; the search path reads
	// it exactly twice (start and finish), so latency is one step.
	step := 250 * time.Millisecond
	clock := time.Unix(1700000000, 0)
	store.now = func() time.Time {
		clock = clock.Add(step)
		return clock
	}

	store.SearchFacts(ctx, "timed fact")
	store.SearchLearnings(ctx, "timed fact", "")

	snap := store.Metrics().Snapshot()
	if snap.Requests != 2 {
		t.Fatalf("requests = %d, want 2", snap.Requests)
	}
	if snap.TotalLatency != 2*step {
		t.Errorf("total latency = %v, want %v", snap.TotalLatency, 2*step)
	}
	if got := snap.AverageLatency(); got != step {
		t.Errorf("average latency = %v, want %v", got, step)
	}
}

func TestGetStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddFact(ctx, "one fact", EntryMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "one learning", "gpt", "", "general", "", nil); err != nil {
		t.Fatal(err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Facts != 1 || stats.Learnings != 1 || stats.Files != 0 {
		t.Errorf("stats = %+v, want 1 fact, 1 learning, 0 files", stats)
	}
}

func TestEnsureSignatureRecordedOnFirstOpen(t *testing.T) {
	ctx := context.Background()
	provider := vecstore.NewMemoryProvider()
	enc := embedding.NewDeterministic(4)

	if _, err := NewStore(ctx, provider, enc, config.Default(), testLogger()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	idx, err := provider.Collection(ctx, CollectionFacts, 4)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	meta, err := idx.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if got := meta["embedder"]; got != enc.Signature() {
		t.Errorf("embedder signature = %q, want %q", got, enc.Signature())
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
