// Package knowledge owns the fact, file-chunk and learning collections:
// embedding, versioning, soft-delete, contradiction detection and audit
// logging.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neo-2022/regart-memory/internal/config"
	"github.com/neo-2022/regart-memory/internal/embedding"
	"github.com/neo-2022/regart-memory/internal/rank"
	"github.com/neo-2022/regart-memory/internal/vecstore"
)

var (
	// ErrInvalidMetadata indicates a ranking factor or field outside its
	// allowed range.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrMetadataTooLarge indicates the extension map exceeds its bound.
	ErrMetadataTooLarge = errors.New("metadata too large")

	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("entry not found")
)

// MaxTextBytes is the hard per-entry text limit. Oversized writes return
// the empty-id sentinel, matching the historical add contract.
const MaxTextBytes = 10 * 1024 * 1024

// allowedCategories is the closed category set. Anything else is coerced
// to "general" with a warning rather than rejected.
var allowedCategories = map[string]struct{}{
	"general":    {},
	"preference": {},
	"fact":       {},
	"skill":      {},
	"correction": {},
}

// keyLockCount is the stripe width for per-learning-key write locks.
const keyLockCount = 64

// Store manages the knowledge collections on one vector backend.
//
// Store is safe for concurrent use. Writes to the same learning key are
// serialized within this process by a striped lock; the version chain has
// no cross-process guard (see DESIGN.md).
type Store struct {
	facts     vecstore.Index
	files     vecstore.Index
	learnings vecstore.Index
	audit     vecstore.Index

	encoder embedding.Encoder
	ranker  *rank.Engine
	cfg     *config.Config
	logger  *slog.Logger
	metrics *RetrievalMetrics

	keyLocks [keyLockCount]sync.Mutex
	now      func() time.Time
}

// NewStore opens (creating if needed) the knowledge collections and
// verifies their embedder signatures.
func NewStore(ctx context.Context, provider vecstore.Provider, encoder embedding.Encoder, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		encoder: encoder,
		ranker:  rank.NewEngine(cfg.Rank),
		cfg:     cfg,
		logger:  logger,
		metrics: NewRetrievalMetrics(),
		now:     time.Now,
	}

	dim := encoder.Dimension()
	for _, c := range []struct {
		name string
		dst  *vecstore.Index
	}{
		{CollectionFacts, &s.facts},
		{CollectionFiles, &s.files},
		{CollectionLearnings, &s.learnings},
		{CollectionAudit, &s.audit},
	} {
		idx, err := provider.Collection(ctx, c.name, dim)
		if err != nil {
			return nil, fmt.Errorf("opening collection %q: %w", c.name, err)
		}
		if err := s.ensureSignature(ctx, c.name, idx); err != nil {
			return nil, err
		}
		*c.dst = idx
	}
	return s, nil
}

// ensureSignature records the embedder signature on first use and warns
// when stored vectors were produced by a different configuration. The
// lifecycle manager reports and reindexes such collections.
func (s *Store) ensureSignature(ctx context.Context, name string, idx vecstore.Index) error {
	meta, err := idx.Meta(ctx)
	if err != nil {
		return fmt.Errorf("reading meta of %q: %w", name, err)
	}

	sig := s.encoder.Signature()
	stored := meta["embedder"]
	switch stored {
	case "":
		if err := idx.SetMeta(ctx, map[string]string{"embedder": sig}); err != nil {
			return fmt.Errorf("recording embedder signature on %q: %w", name, err)
		}
	case sig:
	default:
		s.logger.Warn("collection embedder signature differs from configuration, stored vectors may be incompatible",
			"collection", name, "stored", stored, "configured", sig)
	}
	return nil
}

// Metrics returns the retrieval metrics accumulator.
func (s *Store) Metrics() *RetrievalMetrics {
	return s.metrics
}

// validateText applies the legacy add contract: blank or oversized text is
// reported as not-storable (caller returns the empty-id sentinel), valid
// text is returned NUL-stripped.
func (s *Store) validateText(text, what string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("ignoring blank " + what)
		return "", false
	}
	if len(text) > MaxTextBytes {
		s.logger.Warn("text exceeds size limit", "what", what, "bytes", len(text), "limit", MaxTextBytes)
		return "", false
	}
	text = strings.ReplaceAll(text, "\x00", "")
	if sanitized := SanitizeLines(text); sanitized != text {
		s.logger.Warn("redacted secret-looking lines", "what", what)
		text = sanitized
	}
	return text, true
}

// normalizeCategory coerces unknown categories to "general".
func (s *Store) normalizeCategory(category string) string {
	if category == "" {
		return "general"
	}
	if _, ok := allowedCategories[category]; !ok {
		s.logger.Warn("unknown category, using general", "category", category)
		return "general"
	}
	return category
}

// keyLock returns the stripe lock for one learning key.
func (s *Store) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.keyLocks[h.Sum32()%keyLockCount]
}

// zeroVector sizes a placeholder vector for records that are never
// semantically queried (audit events).
func (s *Store) zeroVector() []float32 {
	return make([]float32, s.encoder.Dimension())
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
