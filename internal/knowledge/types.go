package knowledge

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a knowledge entry.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusDeleted    Status = "deleted"
)

// ParseStatus maps a stored string to a Status. Unknown strings are
// returned as-is with ok=false so callers can decide how to degrade.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusSuperseded, StatusDeleted:
		return Status(s), true
	default:
		return Status(s), false
	}
}

// Terminal reports whether the status permits no further transitions.
// Terminal entries are only removed by the TTL sweep.
func (s Status) Terminal() bool {
	return s == StatusDeleted
}

// Collection names shared by the store and the lifecycle manager.
const (
	CollectionFacts     = "agent_memory_facts"
	CollectionFiles     = "agent_memory_files"
	CollectionLearnings = "agent_learnings"
	CollectionAudit     = "agent_audit"
)

// maxExtraKeys bounds the free-form extension map on EntryMeta.
const maxExtraKeys = 16

// EntryMeta is the typed metadata record attached to every knowledge entry.
// Optional scalar factors are pointers; nil means "not set" and scores the
// neutral default at ranking time.
type EntryMeta struct {
	Workspace string
	Model     string
	Agent     string
	Category  string
	Status    Status
	Priority  string

	// Versioning (learnings only)
	Version      int
	LearningKey  string
	SupersededAt time.Time
	SupersededBy string

	// Ranking factors in [0, 1]
	Importance  *float64
	Reliability *float64
	Frequency   *float64

	CreatedAt time.Time

	// Conflict annotations (learnings only)
	ConflictDetected  bool
	PreviousVersionID string
	Contradictions    []Contradiction

	// File chunk fields
	FileName string
	FileID   string
	Chunk    int

	// Extra carries caller-supplied metadata not covered by the typed
	// fields. Bounded and string-valued; validated on write.
	Extra map[string]string
}

// Validate checks the bounds a write must honor.
func (m *EntryMeta) Validate() error {
	if len(m.Extra) > maxExtraKeys {
		return fmt.Errorf("%w: %d extra keys (max %d)", ErrMetadataTooLarge, len(m.Extra), maxExtraKeys)
	}
	for _, f := range []*float64{m.Importance, m.Reliability, m.Frequency} {
		if f != nil && (*f < 0 || *f > 1) {
			return fmt.Errorf("%w: ranking factor %v outside [0,1]", ErrInvalidMetadata, *f)
		}
	}
	return nil
}

// Contradiction describes one semantically conflicting active entry found
// during a learning write.
type Contradiction struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Similarity  float64 `json:"similarity"`
	LearningKey string  `json:"learning_key"`
}

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	ID         string
	Text       string
	Score      float64
	Similarity float64
	Source     string
	Meta       EntryMeta
}

// AddLearningResult reports the outcome of a learning write.
type AddLearningResult struct {
	ID                string
	Version           int
	LearningKey       string
	ConflictDetected  bool
	PreviousVersionID string
	Contradictions    []Contradiction
}

// FileInfo summarizes one stored file.
type FileInfo struct {
	FileName string
	Chunks   int
}

// Stats counts entries per collection.
type Stats struct {
	Facts     int64
	Files     int64
	Learnings int64
}

// LearningStats breaks the learnings collection down by model and category.
type LearningStats struct {
	Total      int64
	ByModel    map[string]int64
	ByCategory map[string]int64
}

// AuditEvent is an append-only record of a store mutation.
type AuditEvent struct {
	ID        string
	Type      string
	Model     string
	Workspace string
	EntryID   string
	CreatedAt time.Time
	Details   string
}

// SearchOption configures a search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK         int
	workspace    string
	agent        string
	category     string
	minPriority  string
	includeFiles bool
}

// WithTopK caps the number of results. The configured default applies when
// unset or non-positive.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) { c.topK = k }
}

// WithWorkspace scopes the search to one workspace.
func WithWorkspace(ws string) SearchOption {
	return func(c *searchConfig) { c.workspace = ws }
}

// WithAgent scopes the search to entries owned by one agent.
func WithAgent(agent string) SearchOption {
	return func(c *searchConfig) { c.agent = agent }
}

// WithCategory scopes the search to one category.
func WithCategory(category string) SearchOption {
	return func(c *searchConfig) { c.category = category }
}

// WithMinPriority drops results whose priority tag scores below the given
// tag's score.
func WithMinPriority(tag string) SearchOption {
	return func(c *searchConfig) { c.minPriority = tag }
}

// WithFiles extends a fact search across the file-chunk collection.
func WithFiles() SearchOption {
	return func(c *searchConfig) { c.includeFiles = true }
}

func buildSearchConfig(defaultTopK int, opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: defaultTopK}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = defaultTopK
	}
	return cfg
}
