package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/vectorpress/vectorpress/internal/rank"
	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
)

// FeedTopic is one configured topical feed group: a fixed URL list and the
// similarity threshold its entries must clear. Curated tech feeds tolerate a
// stricter threshold than the noisier sports ones, so the threshold lives on
// the topic, not the client.
type FeedTopic struct {
	// Name labels the topic in logs and tool output, e.g. "technology".
	Name string

	// URLs are the RSS/Atom feeds polled for this topic.
	URLs []string

	// Threshold is the minimum cosine similarity an entry must score
	// against the query to survive filtering.
	Threshold float64
}

// FeedItem is one feed entry that survived similarity filtering, with its
// full article body fetched.
type FeedItem struct {
	Title      string
	Link       string
	Summary    string
	Source     string
	Body       string
	Similarity float64
}

// feedEntry is a raw entry collected from one feed before filtering.
type feedEntry struct {
	title   string
	summary string
	link    string
	source  string
}

// FeedClient retrieves current news from topical RSS/Atom feeds and keeps
// only the entries semantically close to the query.
//
// The order of operations is deliberate: all entries are first scored on
// their cheap title+summary text, and only the survivors get their full
// article body downloaded. Fetching every body up front would multiply
// latency and bandwidth by the feed size for entries that are thrown away.
type FeedClient struct {
	embedder embeddings.Provider
	fetcher  *Fetcher
	parser   *gofeed.Parser
	log      *slog.Logger
}

// NewFeedClient constructs a feed client.
func NewFeedClient(embedder embeddings.Provider, fetcher *Fetcher) (*FeedClient, error) {
	if embedder == nil {
		return nil, errors.New("retrieve: feed client needs an embeddings provider")
	}
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return &FeedClient{
		embedder: embedder,
		fetcher:  fetcher,
		parser:   gofeed.NewParser(),
		log:      slog.Default().With("component", "feed"),
	}, nil
}

// Search polls every feed of the topic, ranks the pooled entries against the
// query and returns at most maxResults items, best first, with bodies
// attached.
//
// Feeds are polled concurrently and failures are isolated: one unreachable
// feed is logged and skipped while the others contribute their entries. Only
// when every feed fails is an error returned.
func (c *FeedClient) Search(ctx context.Context, topic FeedTopic, query string, maxResults int) ([]FeedItem, error) {
	if query == "" {
		return nil, fmt.Errorf("retrieve: feed topic %q: query is empty", topic.Name)
	}
	if len(topic.URLs) == 0 {
		return nil, fmt.Errorf("retrieve: feed topic %q has no URLs", topic.Name)
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	entries, err := c.collect(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	queryEmbedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding feed query: %w", err)
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.title + " " + e.summary
	}
	entryEmbeddings, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding feed entries: %w", err)
	}

	candidates := make([]rank.Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = rank.Candidate{
			Ordinal:       i,
			Text:          texts[i],
			SourceLocator: e.link,
			Embedding:     entryEmbeddings[i],
			Origin:        e.source,
		}
	}

	survivors := rank.TopN(rank.ScoreAndFilter(queryEmbedding, candidates, topic.Threshold), maxResults)

	// Bodies are fetched only now, for the entries that made the cut.
	items := make([]FeedItem, 0, len(survivors))
	for _, s := range survivors {
		entry := entries[s.Ordinal]
		item := FeedItem{
			Title:      entry.title,
			Link:       entry.link,
			Summary:    entry.summary,
			Source:     entry.source,
			Similarity: s.Similarity,
		}
		body, err := c.fetcher.Fetch(ctx, entry.link)
		if err != nil {
			c.log.Warn("article body fetch failed, keeping summary only",
				"topic", topic.Name, "link", entry.link, "error", err)
		} else {
			item.Body = body
		}
		items = append(items, item)
	}
	return items, nil
}

// collect polls every topic feed concurrently and pools the raw entries.
func (c *FeedClient) collect(ctx context.Context, topic FeedTopic) ([]feedEntry, error) {
	var (
		mu      sync.Mutex
		entries []feedEntry
		failed  int
	)

	g, groupCtx := errgroup.WithContext(ctx)
	for _, feedURL := range topic.URLs {
		g.Go(func() error {
			feed, err := c.parser.ParseURLWithContext(feedURL, groupCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.log.Warn("feed fetch failed", "topic", topic.Name, "url", feedURL, "error", err)
				return nil
			}
			for _, item := range feed.Items {
				entries = append(entries, feedEntry{
					title:   item.Title,
					summary: item.Description,
					link:    item.Link,
					source:  feedURL,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failed == len(topic.URLs) {
		return nil, fmt.Errorf("retrieve: all %d feeds of topic %q failed", failed, topic.Name)
	}
	return entries, nil
}

// FormatFeedItems renders feed items as tool-result text for the model.
func FormatFeedItems(topic string, items []FeedItem) string {
	if len(items) == 0 {
		return fmt.Sprintf("No %s news entries matched the query closely enough.", topic)
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		text := item.Body
		if text == "" {
			text = item.Summary
		}
		fmt.Fprintf(&sb, "[%s | similarity %.2f | %q]\n%s\n%s", topic, item.Similarity, item.Title, item.Link, text)
	}
	return sb.String()
}
