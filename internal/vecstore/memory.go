package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryProvider keeps all collections in process memory. It backs tests and
// embedded deployments that do not want an external vector database.
type MemoryProvider struct {
	mu          sync.Mutex
	collections map[string]*memoryIndex
}

// NewMemoryProvider creates an empty in-process provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]*memoryIndex)}
}

func (p *MemoryProvider) Collection(_ context.Context, name string, dim int) (Index, error) {
	if dim < 1 {
		return nil, fmt.Errorf("collection %q: invalid dimension %d", name, dim)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.collections[name]; ok {
		if idx.dim != dim {
			return nil, fmt.Errorf("collection %q: %w: have %d, want %d",
				name, ErrDimensionMismatch, idx.dim, dim)
		}
		return idx, nil
	}

	idx := &memoryIndex{
		dim:     dim,
		records: make(map[string]Record),
		meta:    make(map[string]string),
	}
	p.collections[name] = idx
	return idx, nil
}

func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections = make(map[string]*memoryIndex)
	return nil
}

// memoryIndex is a map-backed Index with brute-force cosine search.
type memoryIndex struct {
	mu      sync.RWMutex
	dim     int
	records map[string]Record
	meta    map[string]string
}

func (m *memoryIndex) Upsert(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range recs {
		if len(r.Vector) != m.dim {
			return fmt.Errorf("record %q: %w: have %d, want %d",
				r.ID, ErrDimensionMismatch, len(r.Vector), m.dim)
		}
	}
	for _, r := range recs {
		m.records[r.ID] = cloneRecord(r)
	}
	return nil
}

func (m *memoryIndex) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	out := cloneRecord(r)
	return &out, nil
}

func (m *memoryIndex) Query(_ context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("query: %w: have %d, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	if topK < 1 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.records))
	for _, r := range m.records {
		if !matchesFilter(r.Payload, filter) {
			continue
		}
		hits = append(hits, Hit{
			Record:   cloneRecord(r),
			Distance: cosineDistance(vector, r.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memoryIndex) Scroll(_ context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit < 1 {
		return nil, "", nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id, r := range m.records {
		if id > cursor && matchesFilter(r.Payload, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[len(ids)-1]
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(m.records[id]))
	}
	return out, next, nil
}

func (m *memoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *memoryIndex) DeleteByFilter(_ context.Context, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.records {
		if matchesFilter(r.Payload, filter) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryIndex) Count(_ context.Context, filter Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.records {
		if matchesFilter(r.Payload, filter) {
			n++
		}
	}
	return n, nil
}

func (m *memoryIndex) UpdatePayload(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	if r.Payload == nil {
		r.Payload = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		r.Payload[k] = v
	}
	m.records[id] = r
	return nil
}

func (m *memoryIndex) Meta(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.meta))
	for k, v := range m.meta {
		out[k] = v
	}
	return out, nil
}

func (m *memoryIndex) SetMeta(_ context.Context, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.meta = make(map[string]string, len(meta))
	for k, v := range meta {
		m.meta[k] = v
	}
	return nil
}

func cloneRecord(r Record) Record {
	out := Record{ID: r.ID}
	out.Vector = make([]float32, len(r.Vector))
	copy(out.Vector, r.Vector)
	if r.Payload != nil {
		out.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// matchesFilter reports whether payload satisfies every filter entry.
// Numeric values compare by magnitude regardless of the Go integer or float
// type they arrived in.
func matchesFilter(payload map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// cosineDistance returns 1 - cosine similarity, in [0, 2]. A zero vector on
// either side yields the maximum distance for its comparison, 1.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
