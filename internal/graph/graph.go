// Package graph maintains typed relationships between knowledge entries
// and answers neighbor and traversal queries over them. Edges live in
// their own collection; each edge is embedded from a descriptive sentence
// so relationships can also be found semantically.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// CollectionGraph holds relationship edges.
const CollectionGraph = "agent_graph"

// DefaultNodeType is assumed when a caller does not classify a node.
const DefaultNodeType = "knowledge"

// defaultTraverseNodes bounds a traversal when the caller passes no cap.
const defaultTraverseNodes = 50

var (
	// ErrInvalidRelationshipType indicates a type outside the configured set.
	ErrInvalidRelationshipType = errors.New("invalid relationship type")

	// ErrSelfLoop indicates source and target are the same node.
	ErrSelfLoop = errors.New("relationship source and target are the same node")

	// ErrNotFound indicates no edge with the given id exists.
	ErrNotFound = errors.New("relationship not found")
)

// Payload keys for edge records.
const (
	keyKind       = "kind"
	keyText       = "text"
	keySource     = "source_id"
	keyTarget     = "target_id"
	keyRelType    = "relationship_type"
	keySourceType = "source_type"
	keyTargetType = "target_type"
	keyWorkspace  = "workspace"
	keyCreatedAt  = "created_at"
	keyMetaPrefix = "meta_"

	kindRelationship = "relationship"
)

// Relationship is one directed, typed edge.
type Relationship struct {
	ID         string
	Source     string
	Target     string
	Type       string
	SourceType string
	TargetType string
	Workspace  string
	Meta       map[string]string
	CreatedAt  time.Time
}

// TraversalNode is one visited node with the edges it participates in.
type TraversalNode struct {
	NodeID        string
	Depth         int
	Relationships []Relationship
}

// Traversal is the result of a breadth-first walk.
type Traversal struct {
	Start              string
	Nodes              []TraversalNode
	TotalRelationships int
	MaxDepthReached    int
}

// Engine stores and queries the relationship graph.
type Engine struct {
	idx     vecstore.Index
	encoder embedding.Encoder
	cfg     config.GraphConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine opens the edge collection on the given backend.
func NewEngine(ctx context.Context, provider vecstore.Provider, encoder embedding.Encoder, cfg config.GraphConfig, logger *slog.Logger) (*Engine, error) {
	if provider == nil || encoder == nil {
		return nil, fmt.Errorf("provider and encoder are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := provider.Collection(ctx, CollectionGraph, encoder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", CollectionGraph, err)
	}
	return &Engine{
		idx:     idx,
		encoder: encoder,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// CreateRelationship validates and stores one edge, returning it with its
// assigned id. Source and target types default to "knowledge".
func (e *Engine) CreateRelationship(ctx context.Context, rel Relationship) (Relationship, error) {
	if !e.typeAllowed(rel.Type) {
		return Relationship{}, fmt.Errorf("%w: %q (allowed: %s)",
			ErrInvalidRelationshipType, rel.Type, strings.Join(e.cfg.RelationshipTypes, ", "))
	}
	if rel.Source == "" || rel.Target == "" {
		return Relationship{}, fmt.Errorf("%w: source and target are required", ErrInvalidRelationshipType)
	}
	if rel.Source == rel.Target {
		return Relationship{}, ErrSelfLoop
	}
	if rel.SourceType == "" {
		rel.SourceType = DefaultNodeType
	}
	if rel.TargetType == "" {
		rel.TargetType = DefaultNodeType
	}
	rel.ID = uuid.NewString()
	rel.CreatedAt = e.now()

	description := fmt.Sprintf("%s:%s %s %s:%s",
		rel.SourceType, rel.Source, rel.Type, rel.TargetType, rel.Target)
	vec, err := e.encoder.Encode(ctx, description)
	if err != nil {
		return Relationship{}, fmt.Errorf("embedding relationship: %w", err)
	}

	payload := map[string]any{
		keyKind:       kindRelationship,
		keyText:       description,
		keySource:     rel.Source,
		keyTarget:     rel.Target,
		keyRelType:    rel.Type,
		keySourceType: rel.SourceType,
		keyTargetType: rel.TargetType,
		keyCreatedAt:  float64(rel.CreatedAt.Unix()),
	}
	if rel.Workspace != "" {
		payload[keyWorkspace] = rel.Workspace
	}
	for k, v := range rel.Meta {
		payload[keyMetaPrefix+k] = v
	}

	err = e.idx.Upsert(ctx, []vecstore.Record{{ID: rel.ID, Vector: vec, Payload: payload}})
	if err != nil {
		return Relationship{}, fmt.Errorf("writing relationship: %w", err)
	}

	e.logger.Info("relationship created",
		"id", rel.ID, "source", rel.Source, "type", rel.Type, "target", rel.Target)
	return rel, nil
}

// CreateContradiction links two contradicting entries with a "contradicts"
// edge carrying the observed similarity.
func (e *Engine) CreateContradiction(ctx context.Context, newID, existingID string, similarity float64, workspace string) (Relationship, error) {
	return e.CreateRelationship(ctx, Relationship{
		Source:    newID,
		Target:    existingID,
		Type:      "contradicts",
		Workspace: workspace,
		Meta:      map[string]string{"similarity": fmt.Sprintf("%.4f", similarity)},
	})
}

// GetRelationship fetches one edge by id.
func (e *Engine) GetRelationship(ctx context.Context, id string) (Relationship, error) {
	rec, err := e.idx.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vecstore.ErrNotFound) {
			return Relationship{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Relationship{}, err
	}
	return relationshipFromRecord(*rec), nil
}

// DeleteRelationship removes one edge. Missing ids are reported as
// ErrNotFound so callers can distinguish them from backend faults.
func (e *Engine) DeleteRelationship(ctx context.Context, id string) error {
	if _, err := e.GetRelationship(ctx, id); err != nil {
		return err
	}
	if err := e.idx.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("deleting relationship %s: %w", id, err)
	}
	e.logger.Info("relationship deleted", "id", id)
	return nil
}

// ListRelationships returns edges filtered by workspace and type, newest
// first.
func (e *Engine) ListRelationships(ctx context.Context, workspace, relType string) ([]Relationship, error) {
	filter := vecstore.Filter{keyKind: kindRelationship}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}
	if relType != "" {
		filter[keyRelType] = relType
	}

	var rels []Relationship
	cursor := ""
	for {
		recs, next, err := e.idx.Scroll(ctx, filter, 200, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing relationships: %w", err)
		}
		for _, rec := range recs {
			rels = append(rels, relationshipFromRecord(rec))
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].CreatedAt.After(rels[j].CreatedAt)
	})
	return rels, nil
}

// GetNeighbors finds edges where the node appears as source or target.
// Backends cannot OR across fields, so this runs one scan per role and
// merges, deduplicating by edge id. The result is capped at maxResults,
// or the configured neighbor limit when non-positive.
func (e *Engine) GetNeighbors(ctx context.Context, nodeID, relType string, maxResults int) ([]Relationship, error) {
	limit := maxResults
	if limit < 1 {
		limit = e.cfg.MaxNeighbors
	}

	seen := make(map[string]struct{})
	var merged []Relationship
	for _, role := range []string{keySource, keyTarget} {
		filter := vecstore.Filter{keyKind: kindRelationship, role: nodeID}
		if relType != "" {
			filter[keyRelType] = relType
		}
		cursor := ""
		for {
			recs, next, err := e.idx.Scroll(ctx, filter, 200, cursor)
			if err != nil {
				return nil, fmt.Errorf("scanning neighbors of %s: %w", nodeID, err)
			}
			for _, rec := range recs {
				if _, dup := seen[rec.ID]; dup {
					continue
				}
				seen[rec.ID] = struct{}{}
				merged = append(merged, relationshipFromRecord(rec))
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Traverse walks the graph breadth-first from a start node. The depth is
// capped at the configured maximum regardless of the request; maxNodes
// bounds the visited set so dense or cyclic graphs terminate.
func (e *Engine) Traverse(ctx context.Context, start string, maxDepth int, relTypes []string, maxNodes int) (Traversal, error) {
	depthLimit := e.cfg.MaxDepth
	if maxDepth > 0 && maxDepth < depthLimit {
		depthLimit = maxDepth
	}
	if maxNodes < 1 {
		maxNodes = defaultTraverseNodes
	}

	// Single-type filters push down to the backend; multi-type filters
	// apply after the scan.
	scanType := ""
	if len(relTypes) == 1 {
		scanType = relTypes[0]
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]struct{}{start: {}}
	seenEdges := map[string]struct{}{}
	queue := []queued{{start, 0}}
	result := Traversal{Start: start}

	for len(queue) > 0 && len(result.Nodes) < maxNodes {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > depthLimit {
			continue
		}

		neighbors, err := e.GetNeighbors(ctx, cur.id, scanType, 0)
		if err != nil {
			return result, err
		}
		if len(relTypes) > 1 {
			kept := neighbors[:0]
			for _, rel := range neighbors {
				if slices.Contains(relTypes, rel.Type) {
					kept = append(kept, rel)
				}
			}
			neighbors = kept
		}

		result.Nodes = append(result.Nodes, TraversalNode{
			NodeID:        cur.id,
			Depth:         cur.depth,
			Relationships: neighbors,
		})
		// Each edge surfaces from both of its endpoints; count it once.
		for _, rel := range neighbors {
			if _, ok := seenEdges[rel.ID]; ok {
				continue
			}
			seenEdges[rel.ID] = struct{}{}
			result.TotalRelationships++
		}
		if cur.depth > result.MaxDepthReached {
			result.MaxDepthReached = cur.depth
		}

		if cur.depth >= depthLimit {
			continue
		}
		for _, rel := range neighbors {
			next := rel.Target
			if rel.Source != cur.id {
				next = rel.Source
			}
			if _, ok := visited[next]; ok {
				continue
			}
			if len(result.Nodes)+len(queue) >= maxNodes {
				break
			}
			visited[next] = struct{}{}
			queue = append(queue, queued{next, cur.depth + 1})
		}
	}
	return result, nil
}

// SearchRelationships finds edges by the meaning of their descriptive
// text, e.g. "what contradicts the deploy policy".
func (e *Engine) SearchRelationships(ctx context.Context, query string, topK int) ([]Relationship, error) {
	if topK < 1 {
		topK = e.cfg.MaxNeighbors
	}
	vec, err := e.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := e.idx.Query(ctx, vec, topK, vecstore.Filter{keyKind: kindRelationship})
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	rels := make([]Relationship, 0, len(hits))
	for _, hit := range hits {
		rels = append(rels, relationshipFromRecord(hit.Record))
	}
	return rels, nil
}

func (e *Engine) typeAllowed(relType string) bool {
	return slices.Contains(e.cfg.RelationshipTypes, relType)
}

func relationshipFromRecord(rec vecstore.Record) Relationship {
	str := func(key string) string {
		s, _ := rec.Payload[key].(string)
		return s
	}
	rel := Relationship{
		ID:         rec.ID,
		Source:     str(keySource),
		Target:     str(keyTarget),
		Type:       str(keyRelType),
		SourceType: str(keySourceType),
		TargetType: str(keyTargetType),
		Workspace:  str(keyWorkspace),
	}
	if sec, ok := rec.Payload[keyCreatedAt].(float64); ok && sec > 0 {
		rel.CreatedAt = time.Unix(int64(sec), 0).UTC()
	}
	for k, v := range rec.Payload {
		if !strings.HasPrefix(k, keyMetaPrefix) {
			continue
		}
		if s, ok := v.(string); ok {
			if rel.Meta == nil {
				rel.Meta = make(map[string]string)
			}
			rel.Meta[strings.TrimPrefix(k, keyMetaPrefix)] = s
		}
	}
	return rel
}
