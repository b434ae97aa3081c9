// Package embedding turns text into vectors for the retrieval engine.
//
// The Encoder interface decouples storage and ranking from the concrete
// embedding provider. The production implementation bridges to a Genkit
// embedder (Gemini by default); tests use the deterministic encoder in
// fake.go.
package embedding

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"
)

// Encoder generates embedding vectors for text.
type Encoder interface {
	// Encode embeds a single text. The returned vector has exactly
	// Dimension() elements.
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch embeds several texts in one provider call, preserving
	// input order.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the output vector width.
	Dimension() int

	// Signature identifies the model configuration producing the vectors.
	// Stored in collection metadata so the lifecycle manager can detect
	// when stored vectors were produced by a different configuration.
	Signature() string
}

// GenkitEncoder adapts a Genkit ai.Embedder to the Encoder interface.
//
// gemini-embedding-001 outputs 3072 dimensions by default; the encoder
// requests truncation via OutputDimensionality (Matryoshka Representation
// Learning), so the stored width always matches the configured dimension.
type GenkitEncoder struct {
	embedder ai.Embedder
	model    string
	version  string
	dim      int32
}

// NewGenkitEncoder wraps an already registered Genkit embedder.
func NewGenkitEncoder(embedder ai.Embedder, model, version string, dim int) (*GenkitEncoder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if dim < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return &GenkitEncoder{
		embedder: embedder,
		model:    model,
		version:  version,
		dim:      int32(dim),
	}, nil
}

// NewGemini registers a Google AI embedder on the given Genkit instance and
// wraps it. The GEMINI_API_KEY environment variable is read by the plugin.
func NewGemini(g *genkit.Genkit, model, version string, dim int) (*GenkitEncoder, error) {
	return NewGenkitEncoder(googlegenai.GoogleAIEmbedder(g, model), model, version, dim)
}

func (e *GenkitEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenkitEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := e.dim
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
			len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}

func (e *GenkitEncoder) Dimension() int {
	return int(e.dim)
}

func (e *GenkitEncoder) Signature() string {
	return Signature(e.model, e.version, int(e.dim))
}

// Signature builds the canonical model signature string stored in collection
// metadata and compared during reindex checks.
func Signature(model, version string, dim int) string {
	return fmt.Sprintf("%s:%s:%d", model, version, dim)
}
