package vecstore

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// metaPointID is the reserved point holding collection metadata. Qdrant has
// no collection-level metadata API, so the signature recorded at creation
// lives in a dedicated point excluded from every search.
const metaPointID = "00000000-0000-0000-0000-000000000001"

// QdrantProvider talks to a Qdrant server over gRPC.
//
// Logical record IDs are arbitrary strings, but Qdrant point IDs must be
// UUIDs or integers. The provider maps each logical ID to a deterministic
// UUIDv5 and keeps the original under the _id payload key.
type QdrantProvider struct {
	client *qdrant.Client
}

// QdrantConfig holds connection settings for NewQdrantProvider.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrantProvider connects to a Qdrant server.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantProvider{client: client}, nil
}

func (p *QdrantProvider) Collection(ctx context.Context, name string, dim int) (Index, error) {
	if dim < 1 {
		return nil, fmt.Errorf("collection %q: invalid dimension %d", name, dim)
	}

	exists, err := p.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %q: %w", name, err)
	}
	if !exists {
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %q: %w", name, err)
		}
	}
	return &qdrantIndex{client: p.client, name: name, dim: dim}, nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

type qdrantIndex struct {
	client *qdrant.Client
	name   string
	dim    int
}

// pointID maps a logical record ID to the deterministic Qdrant point UUID.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (x *qdrantIndex) Upsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, r := range recs {
		if len(r.Vector) != x.dim {
			return fmt.Errorf("record %q: %w: have %d, want %d",
				r.ID, ErrDimensionMismatch, len(r.Vector), x.dim)
		}
		payload := make(map[string]any, len(r.Payload)+1)
		for k, v := range r.Payload {
			payload[k] = v
		}
		payload["_id"] = r.ID

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.name,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

func (x *qdrantIndex) Get(ctx context.Context, id string) (*Record, error) {
	points, err := x.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: x.name,
		Ids:            []*qdrant.PointId{qdrant.NewID(pointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}

	rec := recordFromPayload(points[0].Payload, points[0].Vectors.GetVector().GetData())
	return &rec, nil
}

func (x *qdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if len(vector) != x.dim {
		return nil, fmt.Errorf("query: %w: have %d, want %d", ErrDimensionMismatch, len(vector), x.dim)
	}
	if topK < 1 {
		return nil, nil
	}
	qf, err := x.buildFilter(filter)
	if err != nil {
		return nil, err
	}

	points, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", x.name, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, pt := range points {
		hit := Hit{
			Record: recordFromPayload(pt.Payload, pt.Vectors.GetVector().GetData()),
			// Qdrant reports cosine similarity, higher is better.
			Distance: 1 - float64(pt.Score),
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (x *qdrantIndex) Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit < 1 {
		return nil, "", nil
	}
	qf, err := x.buildFilter(filter)
	if err != nil {
		return nil, "", err
	}

	req := &qdrant.ScrollPoints{
		CollectionName: x.name,
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if cursor != "" {
		req.Offset = qdrant.NewID(cursor)
	}

	// The high-level Scroll drops the next-page offset, so use the raw
	// points client.
	resp, err := x.client.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("scrolling collection %q: %w", x.name, err)
	}

	recs := make([]Record, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		recs = append(recs, recordFromPayload(pt.Payload, pt.Vectors.GetVector().GetData()))
	}

	next := ""
	if off := resp.GetNextPageOffset(); off != nil {
		next = off.GetUuid()
	}
	return recs, next, nil
}

func (x *qdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(pointID(id)))
	}

	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.name,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	return nil
}

func (x *qdrantIndex) DeleteByFilter(ctx context.Context, filter Filter) (int64, error) {
	qf, err := x.buildFilter(filter)
	if err != nil {
		return 0, err
	}

	// Qdrant's delete result carries no row count; count first.
	n, err := x.Count(ctx, filter)
	if err != nil {
		return 0, err
	}

	_, err = x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.name,
		Points:         qdrant.NewPointsSelectorFilter(qf),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting by filter: %w", err)
	}
	return n, nil
}

func (x *qdrantIndex) Count(ctx context.Context, filter Filter) (int64, error) {
	qf, err := x.buildFilter(filter)
	if err != nil {
		return 0, err
	}

	n, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.name,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", x.name, err)
	}
	return int64(n), nil
}

func (x *qdrantIndex) UpdatePayload(ctx context.Context, id string, patch map[string]any) error {
	if _, err := x.Get(ctx, id); err != nil {
		return err
	}
	_, err := x.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: x.name,
		Payload:        qdrant.NewValueMap(patch),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(pointID(id))),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("updating payload of %q: %w", id, err)
	}
	return nil
}

func (x *qdrantIndex) Meta(ctx context.Context) (map[string]string, error) {
	points, err := x.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: x.name,
		Ids:            []*qdrant.PointId{qdrant.NewID(metaPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("reading meta of %q: %w", x.name, err)
	}
	if len(points) == 0 {
		return map[string]string{}, nil
	}

	meta := make(map[string]string)
	for k, v := range points[0].Payload {
		if s, ok := valueToAny(v).(string); ok {
			meta[k] = s
		}
	}
	return meta, nil
}

func (x *qdrantIndex) SetMeta(ctx context.Context, meta map[string]string) error {
	payload := make(map[string]any, len(meta))
	for k, v := range meta {
		payload[k] = v
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.name,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(metaPointID),
			Vectors: qdrant.NewVectors(make([]float32, x.dim)...),
			Payload: qdrant.NewValueMap(payload),
		}},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("writing meta of %q: %w", x.name, err)
	}
	return nil
}

// buildFilter converts a payload equality filter to a Qdrant filter. The
// metadata point is always excluded.
func (x *qdrantIndex) buildFilter(filter Filter) (*qdrant.Filter, error) {
	qf := &qdrant.Filter{
		MustNot: []*qdrant.Condition{
			qdrant.NewHasID(qdrant.NewID(metaPointID)),
		},
	}
	for k, v := range filter {
		cond, err := matchCondition(k, v)
		if err != nil {
			return nil, err
		}
		qf.Must = append(qf.Must, cond)
	}
	return qf, nil
}

func matchCondition(field string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatch(field, v), nil
	case bool:
		return qdrant.NewMatchBool(field, v), nil
	case int:
		return qdrant.NewMatchInt(field, int64(v)), nil
	case int32:
		return qdrant.NewMatchInt(field, int64(v)), nil
	case int64:
		return qdrant.NewMatchInt(field, v), nil
	case float64:
		if v == math.Trunc(v) {
			return qdrant.NewMatchInt(field, int64(v)), nil
		}
		return nil, fmt.Errorf("filter %q: fractional values are not matchable", field)
	default:
		return nil, fmt.Errorf("filter %q: unsupported value type %T", field, value)
	}
}

// recordFromPayload rebuilds a Record from a Qdrant payload, restoring the
// logical ID from the _id key.
func recordFromPayload(payload map[string]*qdrant.Value, vector []float32) Record {
	rec := Record{
		Vector:  vector,
		Payload: make(map[string]any, len(payload)),
	}
	for k, v := range payload {
		if k == "_id" {
			rec.ID, _ = valueToAny(v).(string)
			continue
		}
		rec.Payload[k] = valueToAny(v)
	}
	return rec
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, valueToAny(item))
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}
