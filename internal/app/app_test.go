package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"go.uber.org/goleak"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/graph"
	"github.com/neo-2022/regart-memory/internal/knowledge"
	"github.com/neo-2022/regart-memory/internal/lifecycle"
	"github.com/neo-2022/regart-memory/internal/skill"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// newTestApp composes an App on the in-memory backend with a fake encoder,
// the same way Setup does minus Genkit.
func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := config.Default()
	enc := embedding.NewDeterministic(cfg.EmbedderDimension)

	a := &App{Config: cfg, Logger: testLogger(), Encoder: enc}
	if err := a.wire(context.Background(), enc); err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return a
}

func TestWireBuildsAllEngines(t *testing.T) {
	a := newTestApp(t)

	if a.Provider == nil || a.Knowledge == nil || a.Graph == nil ||
		a.Skill == nil || a.Lifecycle == nil || a.Scheduler == nil {
		t.Fatalf("wire left components nil: %+v", a)
	}
}

func TestEnginesShareBackend(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	id, err := a.Knowledge.AddFact(ctx, "deploys run from the main branch", knowledge.EntryMeta{
		Model: "gpt", Workspace: "ws",
	})
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if id == "" {
		t.Fatal("AddFact returned empty id")
	}

	created, err := a.Skill.Create(ctx, skill.Skill{
		Goal:      "release a new version",
		Workspace: "ws",
	})
	if err != nil {
		t.Fatalf("Skill.Create: %v", err)
	}

	if _, err := a.Graph.CreateRelationship(ctx, graph.Relationship{
		Source:    id,
		Target:    created.ID,
		Type:      "relates_to",
		Workspace: "ws",
	}); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}

	report, err := a.Lifecycle.CleanupExpired(ctx, lifecycle.TargetAll)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if report.TotalDeleted != 0 {
		t.Errorf("TotalDeleted = %d, want 0 for fresh data", report.TotalDeleted)
	}
}

func TestCloseStopsScheduler(t *testing.T) {
	cfg := config.Default()
	cfg.Lifecycle.ReindexCheckIntervalSec = 1
	enc := embedding.NewDeterministic(cfg.EmbedderDimension)

	a := &App{Config: cfg, Logger: testLogger(), Encoder: enc}
	if err := a.wire(context.Background(), enc); err != nil {
		t.Fatalf("wire: %v", err)
	}

	a.Scheduler.Start(context.Background())

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Second close must be a no-op.
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
