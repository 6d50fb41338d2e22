// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The agent uses
// these vectors in two places: the feed adapter embeds RSS entries and the
// user's query before similarity ranking, and the corpus adapter embeds the
// query for pgvector search over the pre-indexed article store. The ingestion
// pipeline uses the same provider to embed article chunks at index time —
// query and corpus vectors must come from the same model.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the dimensionality
// reported by Dimensions. Mixing vectors from different providers in one
// similarity computation produces meaningless scores.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed through verbatim; any model-specific formatting (such as a
	// "query: " prefix) is the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in a single provider
	// call. The returned slice has the same length and order as texts. On
	// error the entire result is nil — partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces, determined by the underlying model.
	Dimensions() int

	// ModelID returns the provider-specific model identifier
	// (e.g., "nomic-embed-text", "text-embedding-3-small").
	ModelID() string
}
