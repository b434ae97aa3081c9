// Package skill stores structured agent skills: a goal with steps,
// examples, constraints and a confidence that strengthens with use.
// Skills are versioned like learnings; updating one supersedes the old
// version under a shared canonical id.
package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/rank"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// CollectionSkills holds skill records.
const CollectionSkills = "agent_skills"

// Skill statuses.
const (
	StatusActive     = "active"
	StatusSuperseded = "superseded"
	StatusDeleted    = "deleted"
)

// ErrNotFound indicates no skill with the given id exists.
var ErrNotFound = errors.New("skill not found")

// Payload keys for skill records.
const (
	keyKind        = "kind"
	keyText        = "text"
	keyGoal        = "goal"
	keySteps       = "steps"
	keyExamples    = "examples"
	keyConstraints = "constraints"
	keySources     = "sources"
	keyTags        = "tags"
	keyConfidence  = "confidence"
	keyVersion     = "version"
	keyStatus      = "status"
	keyModel       = "model_name"
	keyWorkspace   = "workspace"
	keyUsageCount  = "usage_count"
	keyCreatedAt   = "created_at"
	keyUpdatedAt   = "updated_at"
	keyDeletedAt   = "deleted_at"
	keyCanonicalID = "canonical_id"
	keyPreviousID  = "previous_version_id"

	kindSkill = "skill"
)

// Skill is one stored skill version.
type Skill struct {
	ID                string
	CanonicalID       string
	Goal              string
	Steps             []string
	Examples          []string
	Constraints       []string
	Sources           []string
	Tags              []string
	Confidence        float64
	Version           int
	Status            string
	Model             string
	Workspace         string
	UsageCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PreviousVersionID string

	// Relevance is set on search results only.
	Relevance float64
}

// Update carries the fields of an update; nil slices and a negative
// confidence mean "keep the current value".
type Update struct {
	Goal        string
	Steps       []string
	Examples    []string
	Constraints []string
	Sources     []string
	Tags        []string
	Confidence  float64
}

// NoConfidenceChange marks Update.Confidence as unset.
const NoConfidenceChange = -1

// Engine manages the skill collection.
type Engine struct {
	idx     vecstore.Index
	encoder embedding.Encoder
	cfg     config.SkillConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine opens the skill collection on the given backend.
func NewEngine(ctx context.Context, provider vecstore.Provider, encoder embedding.Encoder, cfg config.SkillConfig, logger *slog.Logger) (*Engine, error) {
	if provider == nil || encoder == nil {
		return nil, fmt.Errorf("provider and encoder are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := provider.Collection(ctx, CollectionSkills, encoder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", CollectionSkills, err)
	}
	return &Engine{
		idx:     idx,
		encoder: encoder,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// newSkillID mints a short, prefixed id. All versions of a skill share
// the first version's id as their canonical id.
func newSkillID() string {
	return "skill-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// buildDocument joins the structured fields into the text the skill is
// indexed under. Indexing the whole structure retrieves better than the
// goal alone.
func buildDocument(goal string, steps, examples, constraints []string) string {
	parts := []string{goal}
	if len(steps) > 0 {
		parts = append(parts, "Steps: "+strings.Join(steps, "; "))
	}
	if len(examples) > 0 {
		parts = append(parts, "Examples: "+strings.Join(examples, "; "))
	}
	if len(constraints) > 0 {
		parts = append(parts, "Constraints: "+strings.Join(constraints, "; "))
	}
	return strings.Join(parts, " | ")
}

// Create stores a new skill at version 1. A non-positive confidence takes
// the configured default.
func (e *Engine) Create(ctx context.Context, s Skill) (Skill, error) {
	if strings.TrimSpace(s.Goal) == "" {
		return Skill{}, fmt.Errorf("skill goal is required")
	}
	if s.Confidence <= 0 {
		s.Confidence = e.cfg.ConfidenceDefault
	}
	s.Confidence = math.Min(s.Confidence, 1)

	s.ID = newSkillID()
	s.CanonicalID = s.ID
	s.Version = 1
	s.Status = StatusActive
	s.UsageCount = 0
	s.CreatedAt = e.now()
	s.UpdatedAt = s.CreatedAt

	if err := e.store(ctx, s); err != nil {
		return Skill{}, err
	}
	e.logger.Info("skill created", "id", s.ID, "goal", clip(s.Goal, 80), "confidence", s.Confidence)
	return s, nil
}

func (e *Engine) store(ctx context.Context, s Skill) error {
	document := buildDocument(s.Goal, s.Steps, s.Examples, s.Constraints)
	vec, err := e.encoder.Encode(ctx, document)
	if err != nil {
		return fmt.Errorf("embedding skill: %w", err)
	}

	payload := map[string]any{
		keyKind:        kindSkill,
		keyText:        document,
		keyGoal:        s.Goal,
		keySteps:       toAnySlice(s.Steps),
		keyExamples:    toAnySlice(s.Examples),
		keyConstraints: toAnySlice(s.Constraints),
		keySources:     toAnySlice(s.Sources),
		keyTags:        toAnySlice(s.Tags),
		keyConfidence:  s.Confidence,
		keyVersion:     int64(s.Version),
		keyStatus:      s.Status,
		keyModel:       s.Model,
		keyWorkspace:   s.Workspace,
		keyUsageCount:  int64(s.UsageCount),
		keyCreatedAt:   float64(s.CreatedAt.Unix()),
		keyUpdatedAt:   float64(s.UpdatedAt.Unix()),
		keyCanonicalID: s.CanonicalID,
	}
	if s.PreviousVersionID != "" {
		payload[keyPreviousID] = s.PreviousVersionID
	}

	err = e.idx.Upsert(ctx, []vecstore.Record{{ID: s.ID, Vector: vec, Payload: payload}})
	if err != nil {
		return fmt.Errorf("writing skill: %w", err)
	}
	return nil
}

// Get fetches one skill version by id.
func (e *Engine) Get(ctx context.Context, id string) (Skill, error) {
	rec, err := e.idx.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vecstore.ErrNotFound) {
			return Skill{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Skill{}, err
	}
	return skillFromRecord(*rec), nil
}

// List returns skills in one status, optionally scoped to a workspace,
// newest update first. Status defaults to active.
func (e *Engine) List(ctx context.Context, workspace, status string) ([]Skill, error) {
	if status == "" {
		status = StatusActive
	}
	filter := vecstore.Filter{keyKind: kindSkill, keyStatus: status}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}

	var skills []Skill
	cursor := ""
	for {
		recs, next, err := e.idx.Scroll(ctx, filter, 200, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing skills: %w", err)
		}
		for _, rec := range recs {
			skills = append(skills, skillFromRecord(rec))
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sort.SliceStable(skills, func(i, j int) bool {
		return skills[i].UpdatedAt.After(skills[j].UpdatedAt)
	})
	return skills, nil
}

// UpdateVersion supersedes the given version and writes a new one: same
// canonical id, version incremented, unspecified fields carried over.
// Deleted skills cannot be updated.
func (e *Engine) UpdateVersion(ctx context.Context, id string, upd Update) (Skill, error) {
	current, err := e.Get(ctx, id)
	if err != nil {
		return Skill{}, err
	}
	if current.Status == StatusDeleted {
		return Skill{}, fmt.Errorf("%w: %s is deleted", ErrNotFound, id)
	}

	next := current
	next.ID = newSkillID()
	next.Version = current.Version + 1
	next.Status = StatusActive
	next.PreviousVersionID = id
	next.UpdatedAt = e.now()
	if upd.Goal != "" {
		next.Goal = upd.Goal
	}
	if upd.Steps != nil {
		next.Steps = upd.Steps
	}
	if upd.Examples != nil {
		next.Examples = upd.Examples
	}
	if upd.Constraints != nil {
		next.Constraints = upd.Constraints
	}
	if upd.Sources != nil {
		next.Sources = upd.Sources
	}
	if upd.Tags != nil {
		next.Tags = upd.Tags
	}
	if upd.Confidence != NoConfidenceChange && upd.Confidence > 0 {
		next.Confidence = math.Min(upd.Confidence, 1)
	}

	err = e.idx.UpdatePayload(ctx, id, map[string]any{
		keyStatus:    StatusSuperseded,
		keyUpdatedAt: float64(e.now().Unix()),
	})
	if err != nil {
		return Skill{}, fmt.Errorf("superseding skill %s: %w", id, err)
	}
	if err := e.store(ctx, next); err != nil {
		return Skill{}, err
	}

	e.logger.Info("skill updated", "old", id, "new", next.ID, "version", next.Version)
	return next, nil
}

// Delete soft-deletes a skill version, keeping it for audit. Reports
// false when the skill is missing or already deleted.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	current, err := e.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if current.Status == StatusDeleted {
		return false, nil
	}

	nowSec := float64(e.now().Unix())
	err = e.idx.UpdatePayload(ctx, id, map[string]any{
		keyStatus:    StatusDeleted,
		keyDeletedAt: nowSec,
		keyUpdatedAt: nowSec,
	})
	if err != nil {
		return false, fmt.Errorf("deleting skill %s: %w", id, err)
	}
	e.logger.Info("skill deleted", "id", id)
	return true, nil
}

// Search finds active skills by meaning, dropping those below the
// confidence floor. A non-positive minConfidence takes the configured
// minimum; backend faults degrade to an empty result.
func (e *Engine) Search(ctx context.Context, query, workspace string, topK int, minConfidence float64) []Skill {
	if topK < 1 {
		topK = e.cfg.SearchTopK
	}
	if minConfidence <= 0 {
		minConfidence = e.cfg.ConfidenceMin
	}

	vec, err := e.encoder.Encode(ctx, query)
	if err != nil {
		e.logger.Error("embedding skill query failed", "error", err)
		return nil
	}

	filter := vecstore.Filter{keyKind: kindSkill, keyStatus: StatusActive}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}
	hits, err := e.idx.Query(ctx, vec, topK, filter)
	if err != nil {
		e.logger.Error("skill query failed", "error", err)
		return nil
	}

	skills := make([]Skill, 0, len(hits))
	for _, hit := range hits {
		s := skillFromRecord(hit.Record)
		if s.Confidence < minConfidence {
			continue
		}
		s.Relevance = math.Round(rank.Similarity(hit.Distance)*10000) / 10000
		skills = append(skills, s)
	}
	return skills
}

// RecordUsage counts one application of a skill and nudges its confidence
// toward 1 without ever reaching it. Only active skills strengthen;
// reports false otherwise.
func (e *Engine) RecordUsage(ctx context.Context, id string) (bool, error) {
	current, err := e.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if current.Status != StatusActive {
		return false, nil
	}

	confidence := current.Confidence + (1-current.Confidence)*e.cfg.ConfidenceBoost
	confidence = math.Round(math.Min(confidence, 1)*10000) / 10000

	err = e.idx.UpdatePayload(ctx, id, map[string]any{
		keyUsageCount: int64(current.UsageCount + 1),
		keyConfidence: confidence,
		keyUpdatedAt:  float64(e.now().Unix()),
	})
	if err != nil {
		return false, fmt.Errorf("recording usage of %s: %w", id, err)
	}
	e.logger.Info("skill used", "id", id, "usage", current.UsageCount+1, "confidence", confidence)
	return true, nil
}

// CreateFromDialog extracts a rough skill from free-form dialog text.
// The first line becomes the goal; numbered or bulleted lines become
// steps; lines mentioning examples or prohibitions are sorted into
// examples and constraints. Extraction is heuristic, not linguistic.
func (e *Engine) CreateFromDialog(ctx context.Context, dialog, model, workspace string) (Skill, error) {
	lines := strings.Split(strings.TrimSpace(dialog), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return Skill{}, fmt.Errorf("dialog text is empty")
	}
	goal := strings.TrimSpace(lines[0])

	var steps, examples, constraints []string
	for _, line := range lines[1:] {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		lower := strings.ToLower(stripped)
		switch {
		case isStepLine(stripped):
			steps = append(steps, strings.TrimSpace(strings.TrimLeft(stripped, "0123456789.-) ")))
		case strings.Contains(lower, "example") || strings.Contains(lower, "e.g."):
			examples = append(examples, stripped)
		case strings.Contains(lower, "never") || strings.Contains(lower, "must not") ||
			strings.Contains(lower, "constraint") || strings.Contains(lower, "forbidden"):
			constraints = append(constraints, stripped)
		}
	}

	return e.Create(ctx, Skill{
		Goal:        goal,
		Steps:       steps,
		Examples:    examples,
		Constraints: constraints,
		Sources:     []string{"dialog"},
		Model:       model,
		Workspace:   workspace,
	})
}

// isStepLine matches "1. do x", "2) do y", "- do z", "step 3: ...".
func isStepLine(line string) bool {
	if strings.HasPrefix(line, "- ") {
		return true
	}
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "step") {
		return true
	}
	return len(line) > 1 && line[0] >= '0' && line[0] <= '9' &&
		(line[1] == '.' || line[1] == ')' || (line[1] >= '0' && line[1] <= '9'))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, raw := range vals {
			if s, ok := raw.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func skillFromRecord(rec vecstore.Record) Skill {
	str := func(key string) string {
		s, _ := rec.Payload[key].(string)
		return s
	}
	num := func(key string) float64 {
		switch n := rec.Payload[key].(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case float64:
			return n
		default:
			return 0
		}
	}

	s := Skill{
		ID:                rec.ID,
		CanonicalID:       str(keyCanonicalID),
		Goal:              str(keyGoal),
		Steps:             toStringSlice(rec.Payload[keySteps]),
		Examples:          toStringSlice(rec.Payload[keyExamples]),
		Constraints:       toStringSlice(rec.Payload[keyConstraints]),
		Sources:           toStringSlice(rec.Payload[keySources]),
		Tags:              toStringSlice(rec.Payload[keyTags]),
		Confidence:        num(keyConfidence),
		Version:           int(num(keyVersion)),
		Status:            str(keyStatus),
		Model:             str(keyModel),
		Workspace:         str(keyWorkspace),
		UsageCount:        int(num(keyUsageCount)),
		PreviousVersionID: str(keyPreviousID),
	}
	if sec := num(keyCreatedAt); sec > 0 {
		s.CreatedAt = time.Unix(int64(sec), 0).UTC()
	}
	if sec := num(keyUpdatedAt); sec > 0 {
		s.UpdatedAt = time.Unix(int64(sec), 0).UTC()
	}
	return s
}
