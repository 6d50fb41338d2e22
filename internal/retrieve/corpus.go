package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
	"github.com/vectorpress/vectorpress/pkg/store"
)

// CorpusClient answers queries from the pre-indexed article corpus: the
// query is embedded and matched against stored chunk embeddings by cosine
// similarity.
type CorpusClient struct {
	embedder embeddings.Provider
	articles store.ArticleStore
}

// NewCorpus constructs a corpus client over the given store.
func NewCorpus(embedder embeddings.Provider, articles store.ArticleStore) (*CorpusClient, error) {
	if embedder == nil {
		return nil, errors.New("retrieve: corpus client needs an embeddings provider")
	}
	if articles == nil {
		return nil, errors.New("retrieve: corpus client needs an article store")
	}
	return &CorpusClient{embedder: embedder, articles: articles}, nil
}

// Search embeds the query and returns the topK closest chunks above the
// similarity threshold, filtered by the optional section/date bounds.
func (c *CorpusClient) Search(ctx context.Context, query string, topK int, threshold float64, filter store.SearchFilter) ([]store.ChunkResult, error) {
	if query == "" {
		return nil, errors.New("retrieve: corpus query is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding corpus query: %w", err)
	}

	results, err := c.articles.Search(ctx, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve: corpus search: %w", err)
	}

	// The store orders by similarity but does not threshold; weak tail
	// matches are cut here.
	kept := results[:0]
	for _, r := range results {
		if r.Similarity >= threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// FormatChunks renders corpus search results as tool-result text. Each chunk
// gets a source header so the model can attribute what it quotes.
func FormatChunks(results []store.ChunkResult) string {
	if len(results) == 0 {
		return "No indexed articles matched the query closely enough."
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s | %s | %q]\n%s",
			r.Section, r.PublishedAt.Format("2006-01-02"), r.Title, r.Content)
	}
	return sb.String()
}
