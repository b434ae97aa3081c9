// Package config provides engine configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, REGART_ prefix for overrides)
//  2. Config file (~/.regart/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Vector backend: backend selection, PostgreSQL / Qdrant connection
//   - Embedding: embedder model name, version, output dimension
//   - Ranking: composite score weights, recency window, relevance blend
//   - Contradiction: similarity threshold and candidate count
//   - Skills: default/minimum confidence, search top-k, usage boost
//   - Graph: traversal depth, neighbor cap, allowed relationship types
//   - Lifecycle: per-collection TTL and scheduler interval
//
// Security: Sensitive data (passwords) are never logged.
// Validation: Range checks in validation.go with clear sentinel errors.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidBackend indicates the vector backend selection is not supported.
	ErrInvalidBackend = errors.New("unsupported vector backend")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidQdrantHost indicates the Qdrant host is invalid.
	ErrInvalidQdrantHost = errors.New("invalid Qdrant host")

	// ErrInvalidQdrantPort indicates the Qdrant port is out of range.
	ErrInvalidQdrantPort = errors.New("invalid Qdrant port")

	// ErrInvalidRankWeight indicates a rank weight is negative.
	ErrInvalidRankWeight = errors.New("invalid rank weight")

	// ErrInvalidThreshold indicates a similarity threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidConfidence indicates a confidence value is outside [0,1].
	ErrInvalidConfidence = errors.New("invalid confidence value")

	// ErrInvalidGraphLimit indicates a graph bound is not positive.
	ErrInvalidGraphLimit = errors.New("invalid graph limit")

	// ErrNoRelationshipTypes indicates the allowed relationship type set is empty.
	ErrNoRelationshipTypes = errors.New("empty relationship type set")

	// ErrInvalidTTL indicates a TTL value is negative.
	ErrInvalidTTL = errors.New("invalid TTL")

	// ErrInvalidInterval indicates the scheduler interval is not positive.
	ErrInvalidInterval = errors.New("invalid scheduler interval")
)

// Vector backend identifiers used in Config.VectorBackend.
const (
	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 outputs 3072 dimensions by default, but supports
// truncation to 768 via OutputDimensionality (Matryoshka Representation
// Learning). The pgvector schema uses 768 dimensions; see db/migrations.
const DefaultEmbedderModel = "gemini-embedding-001"

// RankConfig holds the composite relevance score weights and blend settings.
//
// The final retrieval score is:
//
//	relevance*WeightRelevance + importance*WeightImportance
//	+ reliability*WeightReliability + recency*WeightRecency
//	+ frequency*WeightFrequency + priority*WeightPriority
//
// Relevance itself is a blend of semantic similarity and keyword overlap:
//
//	(semantic*BlendSemantic + keyword*BlendKeyword) / (BlendSemantic + BlendKeyword)
type RankConfig struct {
	WeightRelevance   float64 `mapstructure:"weight_relevance" json:"weight_relevance"`
	WeightImportance  float64 `mapstructure:"weight_importance" json:"weight_importance"`
	WeightReliability float64 `mapstructure:"weight_reliability" json:"weight_reliability"`
	WeightRecency     float64 `mapstructure:"weight_recency" json:"weight_recency"`
	WeightFrequency   float64 `mapstructure:"weight_frequency" json:"weight_frequency"`
	WeightPriority    float64 `mapstructure:"weight_priority" json:"weight_priority"`

	// RecencyWindowDays is the freshness horizon: entries older than this
	// window score 0 on the recency factor.
	RecencyWindowDays int `mapstructure:"recency_window_days" json:"recency_window_days"`

	BlendSemantic float64 `mapstructure:"blend_semantic" json:"blend_semantic"`
	BlendKeyword  float64 `mapstructure:"blend_keyword" json:"blend_keyword"`
}

// SkillConfig holds Skill Engine tunables.
type SkillConfig struct {
	// ConfidenceDefault is assigned to new skills created without an
	// explicit confidence.
	ConfidenceDefault float64 `mapstructure:"confidence_default" json:"confidence_default"`

	// ConfidenceMin is the search-time floor: results below it are dropped
	// unless the request overrides the threshold.
	ConfidenceMin float64 `mapstructure:"confidence_min" json:"confidence_min"`

	// ConfidenceBoost is the reinforcement rate applied on each recorded
	// usage: confidence += (1 - confidence) * boost.
	ConfidenceBoost float64 `mapstructure:"confidence_boost" json:"confidence_boost"`

	SearchTopK int `mapstructure:"search_top_k" json:"search_top_k"`
}

// GraphConfig holds Graph Engine bounds and the allowed relationship types.
type GraphConfig struct {
	// MaxDepth is the global traversal depth ceiling. Requests asking for
	// more are clamped down to this value.
	MaxDepth int `mapstructure:"max_depth" json:"max_depth"`

	// MaxNeighbors caps the edge count returned by a single neighbor lookup.
	MaxNeighbors int `mapstructure:"max_neighbors" json:"max_neighbors"`

	// RelationshipTypes is the closed set of allowed edge types.
	RelationshipTypes []string `mapstructure:"relationship_types" json:"relationship_types"`
}

// LifecycleConfig holds TTL and scheduler settings.
type LifecycleConfig struct {
	// Per-collection TTL in days. 0 disables expiry for that collection.
	FactsTTLDays     int `mapstructure:"facts_ttl_days" json:"facts_ttl_days"`
	FilesTTLDays     int `mapstructure:"files_ttl_days" json:"files_ttl_days"`
	LearningsTTLDays int `mapstructure:"learnings_ttl_days" json:"learnings_ttl_days"`

	// ReindexCheckIntervalSec is the background scheduler tick interval.
	ReindexCheckIntervalSec int `mapstructure:"reindex_check_interval_sec" json:"reindex_check_interval_sec"`
}

// TracingConfig holds optional OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// Config stores the full engine configuration.
type Config struct {
	// Vector backend selection: "memory", "pgvector" or "qdrant".
	// Anything else fails validation — the process must not start on a
	// misconfigured backend.
	VectorBackend string `mapstructure:"vector_backend" json:"vector_backend"`

	// PostgreSQL connection (pgvector backend; see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Qdrant connection (qdrant backend)
	QdrantHost   string `mapstructure:"qdrant_host" json:"qdrant_host"`
	QdrantPort   int    `mapstructure:"qdrant_port" json:"qdrant_port"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key" json:"qdrant_api_key"` // SENSITIVE: never logged
	QdrantUseTLS bool   `mapstructure:"qdrant_use_tls" json:"qdrant_use_tls"`

	// Embedding
	EmbedderModel        string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderModelVersion string `mapstructure:"embedder_model_version" json:"embedder_model_version"`
	EmbedderDimension    int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// Upstream chunking hints (consumed by callers that split files before
	// submitting chunks; the engine itself stores chunks as given).
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Default number of search results.
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Contradiction detection
	ContradictionThreshold float64 `mapstructure:"contradiction_threshold" json:"contradiction_threshold"`
	ContradictionTopK      int     `mapstructure:"contradiction_top_k" json:"contradiction_top_k"`

	Rank      RankConfig      `mapstructure:"rank" json:"rank"`
	Skill     SkillConfig     `mapstructure:"skill" json:"skill"`
	Graph     GraphConfig     `mapstructure:"graph" json:"graph"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" json:"lifecycle"`
	Tracing   TracingConfig   `mapstructure:"tracing" json:"tracing"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".regart")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL (if set) overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated with defaults only, bypassing file and
// environment lookup. Used by tests and by embedded deployments that do not
// want ~/.regart side effects.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	var cfg Config
	// Unmarshal over a freshly defaulted viper cannot fail: the defaults are
	// typed literals matching the struct.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: unmarshaling default config: %v", err))
	}
	return &cfg
}

// setDefaults sets all default configuration values on the global viper.
func setDefaults() {
	setDefaultsOn(viper.GetViper())
}

// setDefaultsOn sets all default configuration values on the given viper.
func setDefaultsOn(v *viper.Viper) {
	v.SetDefault("vector_backend", BackendMemory)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "regart")
	v.SetDefault("postgres_password", "regart_dev_password")
	v.SetDefault("postgres_db_name", "regart_memory")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Qdrant defaults (gRPC port)
	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_use_tls", false)

	// Embedding defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_model_version", "1")
	v.SetDefault("embedder_dimension", 768)

	// Chunking defaults
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)

	v.SetDefault("top_k", 5)

	// Contradiction detection defaults
	v.SetDefault("contradiction_threshold", 0.85)
	v.SetDefault("contradiction_top_k", 5)

	// Rank weights sum to 1.0 including priority.
	v.SetDefault("rank.weight_relevance", 0.50)
	v.SetDefault("rank.weight_importance", 0.15)
	v.SetDefault("rank.weight_reliability", 0.10)
	v.SetDefault("rank.weight_recency", 0.10)
	v.SetDefault("rank.weight_frequency", 0.05)
	v.SetDefault("rank.weight_priority", 0.10)
	v.SetDefault("rank.recency_window_days", 30)
	v.SetDefault("rank.blend_semantic", 0.7)
	v.SetDefault("rank.blend_keyword", 0.3)

	// Skill defaults
	v.SetDefault("skill.confidence_default", 0.7)
	v.SetDefault("skill.confidence_min", 0.3)
	v.SetDefault("skill.confidence_boost", 0.05)
	v.SetDefault("skill.search_top_k", 5)

	// Graph defaults
	v.SetDefault("graph.max_depth", 3)
	v.SetDefault("graph.max_neighbors", 20)
	v.SetDefault("graph.relationship_types", []string{
		"relates_to", "contradicts", "depends_on", "supersedes", "derived_from",
	})

	// Lifecycle defaults: learnings never expire by default.
	v.SetDefault("lifecycle.facts_ttl_days", 90)
	v.SetDefault("lifecycle.files_ttl_days", 30)
	v.SetDefault("lifecycle.learnings_ttl_days", 0)
	v.SetDefault("lifecycle.reindex_check_interval_sec", 3600)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "regart-memory")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are read from unprefixed variables matching their conventional
// names; operational overrides use the REGART_ prefix.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("vector_backend", "REGART_VECTOR_BACKEND")
	mustBind("embedder_model", "REGART_EMBEDDER_MODEL")
	mustBind("embedder_model_version", "REGART_EMBEDDER_MODEL_VERSION")
	mustBind("qdrant_host", "REGART_QDRANT_HOST")
	mustBind("qdrant_port", "REGART_QDRANT_PORT")
	mustBind("qdrant_api_key", "QDRANT_API_KEY")
	mustBind("log_level", "REGART_LOG_LEVEL")
	mustBind("log_json", "REGART_LOG_JSON")
	mustBind("lifecycle.reindex_check_interval_sec", "REGART_REINDEX_CHECK_INTERVAL")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// NOTE: DATABASE_URL is parsed separately in parseDatabaseURL().
}

// ReindexCheckInterval is a convenience accessor kept close to the raw
// seconds field so callers never multiply by the wrong unit.
func (c *Config) ReindexCheckInterval() int {
	return c.Lifecycle.ReindexCheckIntervalSec
}

// TTLDays returns the configured TTL for a collection name, 0 when the
// collection has no expiry or is unknown.
func (c *Config) TTLDays(collection string) int {
	switch collection {
	case "facts":
		return c.Lifecycle.FactsTTLDays
	case "files":
		return c.Lifecycle.FilesTTLDays
	case "learnings":
		return c.Lifecycle.LearningsTTLDays
	default:
		return 0
	}
}
