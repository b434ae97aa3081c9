package embedding

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"
)

// Deterministic is an Encoder that derives vectors from a SHA-256 hash of
// the input text. The same text always produces the same unit vector, so
// tests and the embedded memory backend get stable similarity behavior
// without network access.
//
// Explicit vectors can be registered to control exact cosine similarity
// between chosen inputs. Safe for concurrent use.
type Deterministic struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewDeterministic creates a deterministic encoder with the given width.
func NewDeterministic(dim int) *Deterministic {
	return &Deterministic{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given text.
func (d *Deterministic) SetVector(text string, vec []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vectors[text] = vec
}

func (d *Deterministic) Encode(_ context.Context, text string) ([]float32, error) {
	return d.vectorFor(text), nil
}

func (d *Deterministic) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = d.vectorFor(t)
	}
	return vecs, nil
}

func (d *Deterministic) Dimension() int {
	return d.dim
}

func (d *Deterministic) Signature() string {
	return Signature("deterministic", "1", d.dim)
}

func (d *Deterministic) vectorFor(text string) []float32 {
	d.mu.Lock()
	if v, ok := d.vectors[text]; ok {
		d.mu.Unlock()
		return v
	}
	d.mu.Unlock()

	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, d.dim)
	for i := range vec {
		b := (int(hash[i%len(hash)]) + i) % 256
		// Spread byte values into [-1, 1).
		vec[i] = float32(b)/128.0 - 1.0
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
