// Package ingest implements the batch pipeline that populates the pgvector
// article store: paginated archive fetch, skip-if-exists by article ID,
// overlapping body chunking, batch embedding, and insertion.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/retrieve"
	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
	"github.com/vectorpress/vectorpress/pkg/store"
)

// Request describes one ingestion run.
type Request struct {
	// Query is the archive search query. Empty fetches the section's latest.
	Query string

	// Section narrows the archive search (e.g., "technology").
	Section string

	// PageSize is articles per archive page. Zero selects 50.
	PageSize int

	// MaxPages bounds pagination. Zero selects 1.
	MaxPages int

	// MaxArticles caps processed articles across all pages. Zero is unlimited.
	MaxArticles int
}

// Stats summarises an ingestion run.
type Stats struct {
	// Fetched is how many articles the archive returned.
	Fetched int

	// Skipped is how many were already in the store.
	Skipped int

	// Ingested is how many were chunked, embedded, and inserted.
	Ingested int

	// Failed is how many could not be processed. Failures do not abort the
	// run; the remaining articles are still attempted.
	Failed int

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Pipeline wires an archive client, an embeddings provider, and the article
// store into one ingestion flow.
type Pipeline struct {
	archive  *retrieve.ArchiveClient
	embedder embeddings.Provider
	articles store.ArticleStore
	metrics  *observe.Metrics
	log      *slog.Logger

	chunkSize    int
	chunkOverlap int
}

// PipelineOption tunes a [Pipeline].
type PipelineOption func(*Pipeline)

// WithChunking overrides the chunk geometry. size must exceed overlap.
func WithChunking(size, overlap int) PipelineOption {
	return func(p *Pipeline) {
		p.chunkSize = size
		p.chunkOverlap = overlap
	}
}

// NewPipeline creates an ingestion pipeline. All three collaborators are
// required.
func NewPipeline(archive *retrieve.ArchiveClient, embedder embeddings.Provider, articles store.ArticleStore, metrics *observe.Metrics, opts ...PipelineOption) (*Pipeline, error) {
	if archive == nil {
		return nil, fmt.Errorf("ingest: an archive client is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: an embeddings provider is required")
	}
	if articles == nil {
		return nil, fmt.Errorf("ingest: an article store is required")
	}

	p := &Pipeline{
		archive:      archive,
		embedder:     embedder,
		articles:     articles,
		metrics:      metrics,
		log:          slog.Default().With("component", "ingest"),
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.chunkSize <= p.chunkOverlap {
		return nil, fmt.Errorf("ingest: chunk size %d must exceed overlap %d", p.chunkSize, p.chunkOverlap)
	}
	return p, nil
}

// Run executes one ingestion pass. Per-article failures are logged and
// counted but do not abort the run; a failed archive fetch does.
func (p *Pipeline) Run(ctx context.Context, req Request) (Stats, error) {
	start := time.Now()

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	articles, err := p.archive.Search(ctx, retrieve.ArchiveQuery{
		Query:    req.Query,
		Section:  req.Section,
		PageSize: pageSize,
		MaxPages: req.MaxPages,
	})
	if err != nil {
		return Stats{Duration: time.Since(start)}, fmt.Errorf("ingest: fetch articles: %w", err)
	}

	stats := Stats{Fetched: len(articles)}
	if req.MaxArticles > 0 && len(articles) > req.MaxArticles {
		articles = articles[:req.MaxArticles]
	}

	p.log.Info("ingestion started",
		"archive", p.archive.Name(),
		"fetched", stats.Fetched,
		"processing", len(articles),
	)

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("ingest: %w", err)
		}

		exists, err := p.articles.Exists(ctx, a.ID)
		if err != nil {
			p.log.Warn("existence check failed", "article_id", a.ID, "err", err)
			stats.Failed++
			continue
		}
		if exists {
			stats.Skipped++
			continue
		}

		if err := p.ingestOne(ctx, a); err != nil {
			p.log.Warn("article ingestion failed", "article_id", a.ID, "err", err)
			stats.Failed++
			continue
		}
		stats.Ingested++
		p.metrics.IngestedArticles.Add(ctx, 1)
	}

	stats.Duration = time.Since(start)
	p.log.Info("ingestion finished",
		"ingested", stats.Ingested,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	return stats, nil
}

// ingestOne chunks, embeds, and stores a single article.
func (p *Pipeline) ingestOne(ctx context.Context, a retrieve.ArchiveArticle) error {
	if a.Body == "" {
		return fmt.Errorf("article has no body text")
	}

	texts := chunkText(a.Body, p.chunkSize, p.chunkOverlap)

	embedStart := time.Now()
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.embedder.ModelID(), "embeddings")
		return fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	p.metrics.EmbedDuration.Record(ctx, time.Since(embedStart).Seconds())

	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{
			Ordinal:   i,
			Content:   text,
			Embedding: vectors[i],
		}
	}

	if err := p.articles.InsertArticle(ctx, store.Article{
		ID:          a.ID,
		Title:       a.Title,
		Section:     a.Section,
		URL:         a.URL,
		PublishedAt: a.PublishedAt,
		WordCount:   a.WordCount,
	}); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	if err := p.articles.InsertChunks(ctx, a.ID, chunks); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	p.log.Debug("article ingested", "article_id", a.ID, "chunks", len(chunks))
	return nil
}
