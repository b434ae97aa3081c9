package knowledge

import (
	"context"
	"testing"
)

func TestAddLearningVersionChain(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	v1, err := store.AddLearning(ctx, "Port is 80", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatalf("AddLearning v1: %v", err)
	}
	if v1.Version != 1 {
		t.Errorf("v1 version = %d, want 1", v1.Version)
	}
	if v1.ConflictDetected {
		t.Error("v1 reported a conflict with no prior version")
	}

	v2, err := store.AddLearning(ctx, "Port is 8080", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatalf("AddLearning v2: %v", err)
	}
	if v2.Version != 2 {
		t.Errorf("v2 version = %d, want 2", v2.Version)
	}
	if !v2.ConflictDetected {
		t.Error("v2 should flag the conflicting rewrite")
	}
	if v2.PreviousVersionID != v1.ID {
		t.Errorf("previous version = %q, want %q", v2.PreviousVersionID, v1.ID)
	}
	if v2.LearningKey != v1.LearningKey {
		t.Errorf("learning key changed across versions: %q vs %q", v2.LearningKey, v1.LearningKey)
	}

	// Only the newest version is retrievable.
	results := store.SearchLearnings(ctx, "Port is 8080", "gpt", WithWorkspace("ws"))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != v2.ID {
		t.Errorf("search returned %q, want active version %q", results[0].ID, v2.ID)
	}
}

func TestAddLearningRestatedTextIsNotConflict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddLearning(ctx, "Use tabs for indentation", "gpt", "", "preference", "ws", nil); err != nil {
		t.Fatal(err)
	}
	v2, err := store.AddLearning(ctx, "  use   TABS for indentation ", "gpt", "", "preference", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v2.ConflictDetected {
		t.Error("whitespace and case variants should not count as a conflict")
	}
	if v2.Version != 2 {
		t.Errorf("version = %d, want 2", v2.Version)
	}
}

func TestAddLearningSeparateKeysDoNotVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, err := store.AddLearning(ctx, "shared text", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.AddLearning(ctx, "shared text", "claude", "", "fact", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.LearningKey == b.LearningKey {
		t.Error("different models must derive different learning keys")
	}
	if b.Version != 1 {
		t.Errorf("cross-model write got version %d, want fresh chain", b.Version)
	}
}

func TestAddLearningSentinel(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.AddLearning(context.Background(), "   ", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatalf("AddLearning: %v", err)
	}
	if res.ID != "" {
		t.Errorf("id = %q, want empty sentinel", res.ID)
	}
}

func TestAddLearningCoercesUnknownCategory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res, err := store.AddLearning(ctx, "odd category text", "gpt", "", "nonsense", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := LearningKey("ws", "gpt", "general"); res.LearningKey != want {
		t.Errorf("learning key = %q, want coerced-to-general key %q", res.LearningKey, want)
	}
}

func TestContradictionDetection(t *testing.T) {
	store, enc := newTestStore(t)
	ctx := context.Background()

	// Nearly parallel vectors, similarity ~0.95, above the 0.85 default.
	enc.SetVector("The API limit is 100 requests", []float32{1, 0, 0, 0})
	enc.SetVector("The API limit is 500 requests", []float32{0.95, 0.3122, 0, 0})

	first, err := store.AddLearning(ctx, "The API limit is 100 requests", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Contradictions) != 0 {
		t.Errorf("first write found %d contradictions in an empty collection", len(first.Contradictions))
	}

	// Different category: a new chain, so the near-duplicate stays active
	// and must be reported as contradicting.
	second, err := store.AddLearning(ctx, "The API limit is 500 requests", "gpt", "", "general", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Contradictions) != 1 {
		t.Fatalf("got %d contradictions, want 1", len(second.Contradictions))
	}
	c := second.Contradictions[0]
	if c.ID != first.ID {
		t.Errorf("contradiction id = %q, want %q", c.ID, first.ID)
	}
	if c.Similarity < 0.85 {
		t.Errorf("similarity = %v, want >= threshold", c.Similarity)
	}
}

func TestContradictionIgnoresOtherModels(t *testing.T) {
	store, enc := newTestStore(t)
	ctx := context.Background()

	enc.SetVector("deploys run on friday", []float32{1, 0, 0, 0})
	enc.SetVector("deploys run on monday", []float32{0.99, 0.141, 0, 0})

	if _, err := store.AddLearning(ctx, "deploys run on friday", "claude", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}
	res, err := store.AddLearning(ctx, "deploys run on monday", "gpt", "", "fact", "ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Contradictions) != 0 {
		t.Errorf("contradiction crossed the model boundary: %+v", res.Contradictions)
	}
}

func TestListVersions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if _, err := store.AddLearning(ctx, text, "gpt", "", "fact", "ws", nil); err != nil {
			t.Fatal(err)
		}
	}

	versions, err := store.ListVersions(ctx, "ws", "gpt", "fact")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("got %d versions, want 3", len(versions))
	}
	for i, v := range versions {
		if v.Version != i+1 {
			t.Errorf("versions[%d].Version = %d, want %d", i, v.Version, i+1)
		}
	}
	if versions[0].Status != StatusSuperseded || versions[2].Status != StatusActive {
		t.Errorf("chain statuses = %v/%v/%v, want superseded/superseded/active",
			versions[0].Status, versions[1].Status, versions[2].Status)
	}
	if versions[1].SupersededBy != versions[2].ID {
		t.Errorf("v2 superseded by %q, want %q", versions[1].SupersededBy, versions[2].ID)
	}
	if versions[0].SupersededAt.IsZero() {
		t.Error("superseded version has no superseded_at timestamp")
	}
}

func TestDeleteModelLearningsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddLearning(ctx, "one", "gpt", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "two", "gpt", "", "general", "ws", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "keep", "claude", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}

	n, err := store.DeleteModelLearnings(ctx, "gpt", "", "")
	if err != nil {
		t.Fatalf("DeleteModelLearnings: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	// Soft-deleted entries stop matching; a repeat reports zero.
	n, err = store.DeleteModelLearnings(ctx, "gpt", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("repeat deleted %d, want 0", n)
	}

	if results := store.SearchLearnings(ctx, "keep", "claude"); len(results) != 1 {
		t.Errorf("other model lost its learnings: got %d results", len(results))
	}
	if results := store.SearchLearnings(ctx, "one", "gpt"); len(results) != 0 {
		t.Errorf("deleted learnings still retrievable: %d results", len(results))
	}
}

func TestGetLearningStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddLearning(ctx, "a", "gpt", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "b", "gpt", "", "preference", "ws", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "c", "claude", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}

	stats, err := store.GetLearningStats(ctx)
	if err != nil {
		t.Fatalf("GetLearningStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.ByModel["gpt"] != 2 || stats.ByModel["claude"] != 1 {
		t.Errorf("by model = %v", stats.ByModel)
	}
	if stats.ByCategory["fact"] != 2 || stats.ByCategory["preference"] != 1 {
		t.Errorf("by category = %v", stats.ByCategory)
	}
}

func TestAuditTrail(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddLearning(ctx, "v one", "gpt", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddLearning(ctx, "v two", "gpt", "", "fact", "ws", nil); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListAuditLog(ctx, "", "gpt", 0)
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	byType := make(map[string]int)
	for _, ev := range events {
		byType[ev.Type]++
	}
	if byType["learning_added"] != 2 {
		t.Errorf("learning_added events = %d, want 2", byType["learning_added"])
	}
	if byType["learning_superseded"] != 1 {
		t.Errorf("learning_superseded events = %d, want 1", byType["learning_superseded"])
	}

	scoped, err := store.ListAuditLog(ctx, "other-ws", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 0 {
		t.Errorf("foreign workspace returned %d events, want 0", len(scoped))
	}
}
