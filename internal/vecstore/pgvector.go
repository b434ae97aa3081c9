package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SchemaDimension is the vector width of the pgvector schema. The column
// type in db/migrations is vector(768); gemini-embedding-001 truncated via
// OutputDimensionality produces matching vectors.
const SchemaDimension = 768

// PgvectorProvider stores all collections in a single PostgreSQL table,
// keyed by (collection, id). Collection metadata lives in collection_meta.
type PgvectorProvider struct {
	pool *pgxpool.Pool
}

// NewPgvectorProvider wraps an existing connection pool. The pool must point
// at a database with the db/migrations schema applied.
func NewPgvectorProvider(pool *pgxpool.Pool) (*PgvectorProvider, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PgvectorProvider{pool: pool}, nil
}

func (p *PgvectorProvider) Collection(ctx context.Context, name string, dim int) (Index, error) {
	if dim != SchemaDimension {
		return nil, fmt.Errorf("collection %q: %w: schema is %d, want %d",
			name, ErrDimensionMismatch, SchemaDimension, dim)
	}
	// Register the collection so Meta works before the first Upsert.
	_, err := p.pool.Exec(ctx,
		`INSERT INTO collection_meta (collection, meta)
		 VALUES ($1, '{}'::jsonb)
		 ON CONFLICT (collection) DO NOTHING`,
		name)
	if err != nil {
		return nil, fmt.Errorf("registering collection %q: %w", name, err)
	}
	return &pgvectorIndex{pool: p.pool, name: name, dim: dim}, nil
}

func (p *PgvectorProvider) Close() error {
	p.pool.Close()
	return nil
}

type pgvectorIndex struct {
	pool *pgxpool.Pool
	name string
	dim  int
}

func (x *pgvectorIndex) Upsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			_ = rbErr
		}
	}()

	for _, r := range recs {
		if len(r.Vector) != x.dim {
			return fmt.Errorf("record %q: %w: have %d, want %d",
				r.ID, ErrDimensionMismatch, len(r.Vector), x.dim)
		}
		payload, err := marshalPayload(r.Payload)
		if err != nil {
			return fmt.Errorf("record %q: %w", r.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO vector_records (collection, id, embedding, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (collection, id)
			 DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`,
			x.name, r.ID, pgvector.NewVector(r.Vector), payload)
		if err != nil {
			return fmt.Errorf("upserting %q: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (x *pgvectorIndex) Get(ctx context.Context, id string) (*Record, error) {
	var (
		vec     pgvector.Vector
		payload []byte
	)
	err := x.pool.QueryRow(ctx,
		`SELECT embedding, payload FROM vector_records
		 WHERE collection = $1 AND id = $2`,
		x.name, id).Scan(&vec, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", id, err)
	}

	rec := Record{ID: id, Vector: vec.Slice()}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload of %q: %w", id, err)
	}
	return &rec, nil
}

func (x *pgvectorIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if len(vector) != x.dim {
		return nil, fmt.Errorf("query: %w: have %d, want %d", ErrDimensionMismatch, len(vector), x.dim)
	}
	if topK < 1 {
		return nil, nil
	}
	filterJSON, err := marshalPayload(map[string]any(filter))
	if err != nil {
		return nil, fmt.Errorf("query filter: %w", err)
	}

	rows, err := x.pool.Query(ctx,
		`SELECT id, embedding, payload, embedding <=> $1 AS distance
		 FROM vector_records
		 WHERE collection = $2 AND payload @> $3::jsonb
		 ORDER BY embedding <=> $1, id
		 LIMIT $4`,
		pgvector.NewVector(vector), x.name, filterJSON, topK)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", x.name, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit     Hit
			vec     pgvector.Vector
			payload []byte
		)
		if err := rows.Scan(&hit.ID, &vec, &payload, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hit.Vector = vec.Slice()
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of %q: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

func (x *pgvectorIndex) Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit < 1 {
		return nil, "", nil
	}
	filterJSON, err := marshalPayload(map[string]any(filter))
	if err != nil {
		return nil, "", fmt.Errorf("scroll filter: %w", err)
	}

	rows, err := x.pool.Query(ctx,
		`SELECT id, embedding, payload FROM vector_records
		 WHERE collection = $1 AND id > $2 AND payload @> $3::jsonb
		 ORDER BY id
		 LIMIT $4`,
		x.name, cursor, filterJSON, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("scrolling collection %q: %w", x.name, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec     Record
			vec     pgvector.Vector
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &vec, &payload); err != nil {
			return nil, "", fmt.Errorf("scanning record: %w", err)
		}
		rec.Vector = vec.Slice()
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, "", fmt.Errorf("decoding payload of %q: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating records: %w", err)
	}

	next := ""
	if len(recs) > limit {
		recs = recs[:limit]
		next = recs[len(recs)-1].ID
	}
	return recs, next, nil
}

func (x *pgvectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := x.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE collection = $1 AND id = ANY($2)`,
		x.name, ids)
	if err != nil {
		return fmt.Errorf("deleting %d records: %w", len(ids), err)
	}
	return nil
}

func (x *pgvectorIndex) DeleteByFilter(ctx context.Context, filter Filter) (int64, error) {
	filterJSON, err := marshalPayload(map[string]any(filter))
	if err != nil {
		return 0, fmt.Errorf("delete filter: %w", err)
	}
	tag, err := x.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE collection = $1 AND payload @> $2::jsonb`,
		x.name, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("deleting by filter: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (x *pgvectorIndex) Count(ctx context.Context, filter Filter) (int64, error) {
	filterJSON, err := marshalPayload(map[string]any(filter))
	if err != nil {
		return 0, fmt.Errorf("count filter: %w", err)
	}
	var n int64
	err = x.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vector_records
		 WHERE collection = $1 AND payload @> $2::jsonb`,
		x.name, filterJSON).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", x.name, err)
	}
	return n, nil
}

func (x *pgvectorIndex) UpdatePayload(ctx context.Context, id string, patch map[string]any) error {
	patchJSON, err := marshalPayload(patch)
	if err != nil {
		return fmt.Errorf("payload patch for %q: %w", id, err)
	}
	tag, err := x.pool.Exec(ctx,
		`UPDATE vector_records SET payload = payload || $3::jsonb
		 WHERE collection = $1 AND id = $2`,
		x.name, id, patchJSON)
	if err != nil {
		return fmt.Errorf("updating payload of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return nil
}

func (x *pgvectorIndex) Meta(ctx context.Context) (map[string]string, error) {
	var raw []byte
	err := x.pool.QueryRow(ctx,
		`SELECT meta FROM collection_meta WHERE collection = $1`,
		x.name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading meta of %q: %w", x.name, err)
	}

	meta := make(map[string]string)
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding meta of %q: %w", x.name, err)
	}
	return meta, nil
}

func (x *pgvectorIndex) SetMeta(ctx context.Context, meta map[string]string) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding meta of %q: %w", x.name, err)
	}
	_, err = x.pool.Exec(ctx,
		`INSERT INTO collection_meta (collection, meta)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (collection) DO UPDATE SET meta = EXCLUDED.meta`,
		x.name, raw)
	if err != nil {
		return fmt.Errorf("writing meta of %q: %w", x.name, err)
	}
	return nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if len(payload) == 0 {
		return []byte(`{}`), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return raw, nil
}
