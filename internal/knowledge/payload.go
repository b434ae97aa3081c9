package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Payload keys. Values are stored typed (numbers as numbers, booleans as
// booleans); only Extra values are strings.
const (
	keyText             = "text"
	keyWorkspace        = "workspace"
	keyModel            = "model_name"
	keyAgent            = "agent_name"
	keyCategory         = "category"
	keyStatus           = "status"
	keyPriority         = "priority"
	keyVersion          = "version"
	keyLearningKey      = "learning_key"
	keySupersededAt     = "superseded_at"
	keySupersededBy     = "superseded_by"
	keyImportance       = "importance"
	keyReliability      = "reliability"
	keyFrequency        = "frequency"
	keyCreatedAt        = "created_at"
	keyConflictDetected = "conflict_detected"
	keyPreviousVersion  = "previous_version_id"
	keyContradictions   = "contradiction_ids"
	keyFileName         = "file_name"
	keyFileID           = "file_id"
	keyChunk            = "chunk"
	keyExtraPrefix      = "x_"
)

// LearningKey derives the stable version-chain key for a logical learning.
// The same workspace, model and category always produce the same key.
func LearningKey(workspace, model, category string) string {
	h := sha256.Sum256([]byte(workspace + "\x00" + model + "\x00" + category))
	return "lk-" + hex.EncodeToString(h[:8])
}

// NormalizeText is the comparison form used for conflict and contradiction
// checks: whitespace-collapsed, case-folded.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// payloadFromMeta flattens an entry into a backend payload.
func payloadFromMeta(text string, m EntryMeta) map[string]any {
	p := map[string]any{
		keyText:      text,
		keyStatus:    string(m.Status),
		keyCreatedAt: float64(m.CreatedAt.Unix()),
	}
	setIfNotEmpty := func(key, val string) {
		if val != "" {
			p[key] = val
		}
	}
	setIfNotEmpty(keyWorkspace, m.Workspace)
	setIfNotEmpty(keyModel, m.Model)
	setIfNotEmpty(keyAgent, m.Agent)
	setIfNotEmpty(keyCategory, m.Category)
	setIfNotEmpty(keyPriority, m.Priority)
	setIfNotEmpty(keyLearningKey, m.LearningKey)
	setIfNotEmpty(keySupersededBy, m.SupersededBy)
	setIfNotEmpty(keyPreviousVersion, m.PreviousVersionID)
	setIfNotEmpty(keyFileName, m.FileName)
	setIfNotEmpty(keyFileID, m.FileID)

	if m.Version > 0 {
		p[keyVersion] = int64(m.Version)
	}
	if m.Chunk > 0 {
		p[keyChunk] = int64(m.Chunk)
	}
	if !m.SupersededAt.IsZero() {
		p[keySupersededAt] = float64(m.SupersededAt.Unix())
	}
	if m.ConflictDetected {
		p[keyConflictDetected] = true
	}
	if m.Importance != nil {
		p[keyImportance] = *m.Importance
	}
	if m.Reliability != nil {
		p[keyReliability] = *m.Reliability
	}
	if m.Frequency != nil {
		p[keyFrequency] = *m.Frequency
	}
	if len(m.Contradictions) > 0 {
		ids := make([]any, 0, len(m.Contradictions))
		for _, c := range m.Contradictions {
			ids = append(ids, c.ID)
		}
		p[keyContradictions] = ids
	}
	for k, v := range m.Extra {
		p[keyExtraPrefix+k] = v
	}
	return p
}

// metaFromPayload rebuilds typed metadata from a backend payload. Unknown
// or malformed values degrade to zero values instead of erroring; payloads
// are data, not trusted input.
func metaFromPayload(p map[string]any) (text string, m EntryMeta) {
	text, _ = p[keyText].(string)

	str := func(key string) string {
		s, _ := p[key].(string)
		return s
	}
	m.Workspace = str(keyWorkspace)
	m.Model = str(keyModel)
	m.Agent = str(keyAgent)
	m.Category = str(keyCategory)
	m.Priority = str(keyPriority)
	m.LearningKey = str(keyLearningKey)
	m.SupersededBy = str(keySupersededBy)
	m.PreviousVersionID = str(keyPreviousVersion)
	m.FileName = str(keyFileName)
	m.FileID = str(keyFileID)

	m.Status, _ = ParseStatus(str(keyStatus))
	m.Version = int(payloadInt(p[keyVersion]))
	m.Chunk = int(payloadInt(p[keyChunk]))

	if sec := payloadFloat(p[keyCreatedAt]); sec > 0 {
		m.CreatedAt = time.Unix(int64(sec), 0).UTC()
	}
	if sec := payloadFloat(p[keySupersededAt]); sec > 0 {
		m.SupersededAt = time.Unix(int64(sec), 0).UTC()
	}
	if b, ok := p[keyConflictDetected].(bool); ok {
		m.ConflictDetected = b
	}
	for _, key := range []string{keyImportance, keyReliability, keyFrequency} {
		if f, ok := payloadOptFloat(p[key]); ok {
			v := f
			switch key {
			case keyImportance:
				m.Importance = &v
			case keyReliability:
				m.Reliability = &v
			case keyFrequency:
				m.Frequency = &v
			}
		}
	}
	if ids, ok := p[keyContradictions].([]any); ok {
		for _, raw := range ids {
			if id, ok := raw.(string); ok {
				m.Contradictions = append(m.Contradictions, Contradiction{ID: id})
			}
		}
	}
	for k, v := range p {
		if !strings.HasPrefix(k, keyExtraPrefix) {
			continue
		}
		if s, ok := v.(string); ok {
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[strings.TrimPrefix(k, keyExtraPrefix)] = s
		}
	}
	return text, m
}

func payloadInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func payloadFloat(v any) float64 {
	switch n := v.(type) {
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

func payloadOptFloat(v any) (float64, bool) {
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
