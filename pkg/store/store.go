// Package store defines the article store consumed by the agent's corpus
// retrieval and populated by the batch ingestion pipeline.
//
// The store is a key-value + vector-search capability: articles are keyed by
// the stable identifier assigned by their upstream archive (e.g., the Guardian
// API id "world/2022/oct/21/russia-ukraine-war-latest"), and their body text
// is split into chunks that carry pre-computed embeddings for similarity
// search.
//
// The interfaces are public so alternative backends (Postgres/pgvector,
// in-memory, …) can be supplied without depending on vectorpress internals.
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"time"
)

// Article is the metadata record for one ingested news article.
type Article struct {
	// ID is the stable upstream identifier. Existence checks during ingestion
	// compare this field only — never content similarity.
	ID string

	// Title is the article headline.
	Title string

	// Section is the archive section (e.g., "world", "technology").
	Section string

	// URL is the canonical web address of the article.
	URL string

	// PublishedAt is the upstream publication timestamp.
	PublishedAt time.Time

	// WordCount is the body word count as reported by the archive, when known.
	WordCount int
}

// Chunk is one pre-embedded segment of an article body.
type Chunk struct {
	// Ordinal is the chunk's position within the article, starting at 0.
	Ordinal int

	// Content is the chunk text.
	Content string

	// Embedding is the vector representation of Content. Its dimension must
	// match the store's configured embedding dimension.
	Embedding []float32
}

// ChunkResult is one semantic search hit: a chunk joined with its article
// metadata and the cosine similarity to the query embedding.
type ChunkResult struct {
	ArticleID   string
	Title       string
	Section     string
	URL         string
	PublishedAt time.Time
	Content     string

	// Similarity is cosine similarity in [-1, 1], larger is closer.
	Similarity float64
}

// SearchFilter narrows a semantic search. Zero-value fields are ignored.
type SearchFilter struct {
	// Section restricts hits to one archive section.
	Section string

	// After keeps only articles published after this instant (exclusive).
	After time.Time

	// Before keeps only articles published before this instant (exclusive).
	Before time.Time
}

// ArticleStore is the persistent article corpus.
type ArticleStore interface {
	// Exists reports whether an article with the given upstream ID has
	// already been ingested.
	Exists(ctx context.Context, articleID string) (bool, error)

	// InsertArticle upserts the metadata record for one article.
	InsertArticle(ctx context.Context, article Article) error

	// InsertChunks replaces the chunk set of the given article with chunks.
	// Chunks must already carry embeddings.
	InsertChunks(ctx context.Context, articleID string, chunks []Chunk) error

	// Search returns the topK chunks closest to embedding, most similar
	// first, honouring filter.
	Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]ChunkResult, error)
}
