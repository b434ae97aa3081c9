// Package vecstore abstracts vector storage behind a small Index interface.
//
// Three backends implement it:
//   - memory: process-local cosine search, used by tests and embedded runs
//   - pgvector: PostgreSQL with the pgvector extension
//   - qdrant: a Qdrant server over gRPC
//
// Distances are cosine distances, lower is better. Backends whose native
// scores are similarities convert them so callers never branch on the
// backend.
package vecstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDimensionMismatch indicates a vector width differs from the
	// collection's configured width.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is a stored vector with its payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is a query result. Distance is cosine distance in [0, 2], lower is
// closer.
type Hit struct {
	Record
	Distance float64
}

// Filter matches records whose payload contains every listed key with an
// equal value. A nil or empty filter matches everything.
type Filter map[string]any

// Index is a single named vector collection.
//
// All implementations are safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, recs []Record) error

	// Get returns a record by ID, ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Query returns up to topK records nearest to vector, filtered by
	// payload equality, ordered by ascending distance.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)

	// Scroll pages through records matching filter without a query vector.
	// Pass an empty cursor to start; an empty returned cursor means the
	// listing is exhausted. Order is stable across pages.
	Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error)

	// Delete removes records by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// DeleteByFilter removes all records matching filter and reports how
	// many were removed.
	DeleteByFilter(ctx context.Context, filter Filter) (int64, error)

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// UpdatePayload merges patch into the payload of the record with the
	// given ID. Existing keys are overwritten, other keys are kept.
	UpdatePayload(ctx context.Context, id string, patch map[string]any) error

	// Meta returns the collection's metadata, such as the embedder
	// signature recorded at creation.
	Meta(ctx context.Context) (map[string]string, error)

	// SetMeta replaces the collection's metadata.
	SetMeta(ctx context.Context, meta map[string]string) error
}

// Provider opens named collections on a concrete backend.
type Provider interface {
	// Collection opens (creating if needed) the named collection with the
	// given vector width.
	Collection(ctx context.Context, name string, dim int) (Index, error)

	// Close releases backend resources.
	Close() error
}
