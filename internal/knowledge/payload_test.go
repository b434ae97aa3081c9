package knowledge

import (
	"testing"
	"time"
)

func TestLearningKeyStability(t *testing.T) {
	a := LearningKey("ws", "gpt", "fact")
	b := LearningKey("ws", "gpt", "fact")
	if a != b {
		t.Errorf("same inputs produced different keys: %q vs %q", a, b)
	}
	if a == LearningKey("ws", "gpt", "general") {
		t.Error("category change did not change the key")
	}
	// The separator must keep adjacent fields from colliding.
	if LearningKey("ab", "c", "d") == LearningKey("a", "bc", "d") {
		t.Error("field boundaries collide")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Port is 80", "port is 80"},
		{"  Port   is\t80 ", "port is 80"},
		{"", ""},
		{"ALREADY lower", "already lower"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	importance := 0.8
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := EntryMeta{
		Workspace:        "ws",
		Model:            "gpt",
		Agent:            "coder",
		Category:         "fact",
		Status:           StatusActive,
		Priority:         "pinned",
		Version:          3,
		LearningKey:      "lk-abc",
		Importance:       &importance,
		CreatedAt:        created,
		ConflictDetected: true,
		Contradictions:   []Contradiction{{ID: "c1"}},
		Extra:            map[string]string{"source": "session-9"},
	}

	text, got := metaFromPayload(payloadFromMeta("the text", meta))
	if text != "the text" {
		t.Errorf("text = %q", text)
	}
	if got.Workspace != "ws" || got.Model != "gpt" || got.Agent != "coder" {
		t.Errorf("identity fields = %q/%q/%q", got.Workspace, got.Model, got.Agent)
	}
	if got.Status != StatusActive || got.Priority != "pinned" {
		t.Errorf("status/priority = %q/%q", got.Status, got.Priority)
	}
	if got.Version != 3 || got.LearningKey != "lk-abc" {
		t.Errorf("versioning = %d/%q", got.Version, got.LearningKey)
	}
	if got.Importance == nil || *got.Importance != 0.8 {
		t.Errorf("importance = %v, want 0.8", got.Importance)
	}
	if got.Reliability != nil {
		t.Error("unset reliability came back non-nil")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, created)
	}
	if !got.ConflictDetected {
		t.Error("conflict flag lost")
	}
	if len(got.Contradictions) != 1 || got.Contradictions[0].ID != "c1" {
		t.Errorf("contradictions = %+v", got.Contradictions)
	}
	if got.Extra["source"] != "session-9" {
		t.Errorf("extra = %v", got.Extra)
	}
}

func TestMetaFromPayloadToleratesJSONNumbers(t *testing.T) {
	// Payloads read back from a JSON-backed store carry float64 numbers.
	_, meta := metaFromPayload(map[string]any{
		keyText:      "x",
		keyVersion:   float64(2),
		keyCreatedAt: float64(1756400000),
		keyStatus:    "active",
	})
	if meta.Version != 2 {
		t.Errorf("version = %d, want 2", meta.Version)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("created at not parsed from float seconds")
	}
}
