package app

import (
	"context"
	"fmt"

	"github.com/vectorpress/vectorpress/internal/config"
	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/retrieve"
	"github.com/vectorpress/vectorpress/internal/tools"
	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
	"github.com/vectorpress/vectorpress/pkg/store"
)

// Default retrieval knobs applied when the model omits the optional fields.
const (
	defaultWebResults  = 2
	defaultFeedResults = 5
	defaultCorpusTopK  = 5
)

// buildRegistry constructs the tool registry from config: one web search
// tool, one search tool per archive, one news tool per feed topic, and the
// corpus tool when enabled.
func buildRegistry(cfg *config.Config, providers *Providers, articles store.ArticleStore, metrics *observe.Metrics) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	if cfg.Tools.WebSearch.APIKey != "" {
		if err := registerWebSearch(reg, cfg.Tools.WebSearch, metrics); err != nil {
			return nil, err
		}
	}

	for _, ac := range cfg.Tools.Archives {
		if err := registerArchive(reg, ac, metrics); err != nil {
			return nil, err
		}
	}

	if len(cfg.Tools.Feeds) > 0 {
		if providers.Embeddings == nil {
			return nil, fmt.Errorf("feed tools require an embeddings provider")
		}
		feedClient, err := retrieve.NewFeedClient(providers.Embeddings, retrieve.NewFetcher())
		if err != nil {
			return nil, err
		}
		for _, fc := range cfg.Tools.Feeds {
			if err := registerFeed(reg, feedClient, fc, metrics); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Tools.Corpus.Enabled {
		if providers.Embeddings == nil {
			return nil, fmt.Errorf("the corpus tool requires an embeddings provider")
		}
		if articles == nil {
			return nil, fmt.Errorf("the corpus tool requires an article store")
		}
		if err := registerCorpus(reg, providers.Embeddings, articles, cfg.Tools.Corpus, metrics); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// queryField is the parameter every retrieval tool shares.
func queryField() tools.FieldSpec {
	return tools.FieldSpec{
		Type:        tools.FieldString,
		Description: "The search query. Extract the most relevant phrasing from the user's request.",
		Required:    true,
		MinLen:      1,
		MaxLen:      500,
	}
}

func registerWebSearch(reg *tools.Registry, cfg config.WebSearchConfig, metrics *observe.Metrics) error {
	client, err := retrieve.NewWebSearch(cfg.APIKey)
	if err != nil {
		return err
	}

	min, max := tools.IntRange(1, 20)
	def := tools.Definition{
		Name: "web_search",
		Description: "Search the open web. Use for general knowledge, tutorials, " +
			"concepts, historical background, and financial market data " +
			"(topic='finance'). Not for current news — the news tools cover that.",
		Params: map[string]tools.FieldSpec{
			"query": queryField(),
			"max_results": {
				Type:        tools.FieldInt,
				Description: "Number of results. Use 2-3 for quick answers, 5-10 for research.",
				Default:     defaultWebResults,
				Min:         min,
				Max:         max,
			},
			"topic": {
				Type:        tools.FieldString,
				Description: "'general' for most queries; 'finance' only for markets, trading, or economic indicators.",
				Default:     "general",
				Enum:        []string{"general", "finance"},
			},
		},
	}

	return reg.Register(def, func(ctx context.Context, args tools.Args) (string, error) {
		results, err := client.Search(ctx, args.String("query"), args.String("topic"), args.Int("max_results"))
		if err != nil {
			return "", err
		}
		metrics.RecordRetrievedDocuments(ctx, "web_search", len(results))
		return retrieve.FormatWebResults(results), nil
	})
}

func registerArchive(reg *tools.Registry, cfg config.ArchiveConfig, metrics *observe.Metrics) error {
	var opts []retrieve.ArchiveOption
	if cfg.BaseURL != "" {
		opts = append(opts, retrieve.WithArchiveBaseURL(cfg.BaseURL))
	}
	client, err := retrieve.NewArchive(cfg.Name, cfg.APIKey, opts...)
	if err != nil {
		return err
	}

	toolName := cfg.Name + "_search"
	pagesMin, pagesMax := tools.IntRange(1, 20)
	sizeMin, sizeMax := tools.IntRange(1, 50)
	def := tools.Definition{
		Name: toolName,
		Description: fmt.Sprintf("Search the %s news archive. Use for world events, politics, "+
			"business, culture, and archived reporting.", cfg.Name),
		Params: map[string]tools.FieldSpec{
			"query": queryField(),
			"section": {
				Type:        tools.FieldString,
				Description: "Optional section filter (e.g., 'world', 'politics', 'business', 'technology').",
				Default:     "",
			},
			"max_pages": {
				Type:        tools.FieldInt,
				Description: "Pages to fetch. Total articles = page_size × max_pages.",
				Default:     1,
				Min:         pagesMin,
				Max:         pagesMax,
			},
			"page_size": {
				Type:        tools.FieldInt,
				Description: "Articles per page.",
				Default:     3,
				Min:         sizeMin,
				Max:         sizeMax,
			},
			"order_by": {
				Type:        tools.FieldString,
				Description: "Sort order for results.",
				Default:     "relevance",
				Enum:        []string{"relevance", "newest", "oldest"},
			},
			"from_date": {
				Type:        tools.FieldString,
				Description: "Earliest publication date, YYYY-MM-DD. Empty means unbounded.",
				Default:     "",
				MaxLen:      10,
			},
			"to_date": {
				Type:        tools.FieldString,
				Description: "Latest publication date, YYYY-MM-DD. Empty means unbounded.",
				Default:     "",
				MaxLen:      10,
			},
		},
	}

	return reg.Register(def, func(ctx context.Context, args tools.Args) (string, error) {
		articles, err := client.Search(ctx, retrieve.ArchiveQuery{
			Query:    args.String("query"),
			Section:  args.String("section"),
			PageSize: args.Int("page_size"),
			MaxPages: args.Int("max_pages"),
			OrderBy:  args.String("order_by"),
			FromDate: args.String("from_date"),
			ToDate:   args.String("to_date"),
		})
		if err != nil {
			return "", err
		}
		metrics.RecordRetrievedDocuments(ctx, toolName, len(articles))
		return retrieve.FormatArticles(cfg.Name, articles), nil
	})
}

func registerFeed(reg *tools.Registry, client *retrieve.FeedClient, cfg config.FeedTopicConfig, metrics *observe.Metrics) error {
	topic := retrieve.FeedTopic{
		Name:      cfg.Name,
		URLs:      cfg.URLs,
		Threshold: cfg.Threshold,
	}

	toolName := cfg.Name + "_news"
	min, max := tools.IntRange(1, 20)
	def := tools.Definition{
		Name: toolName,
		Description: fmt.Sprintf("Current %s news from curated feeds, filtered by relevance "+
			"to the query. Use only for recent %s stories.", cfg.Name, cfg.Name),
		Params: map[string]tools.FieldSpec{
			"query": queryField(),
			"max_results": {
				Type:        tools.FieldInt,
				Description: "Number of stories to return.",
				Default:     defaultFeedResults,
				Min:         min,
				Max:         max,
			},
		},
	}

	return reg.Register(def, func(ctx context.Context, args tools.Args) (string, error) {
		items, err := client.Search(ctx, topic, args.String("query"), args.Int("max_results"))
		if err != nil {
			return "", err
		}
		metrics.RecordRetrievedDocuments(ctx, toolName, len(items))
		return retrieve.FormatFeedItems(cfg.Name, items), nil
	})
}

func registerCorpus(reg *tools.Registry, embedder embeddings.Provider, articles store.ArticleStore, cfg config.CorpusConfig, metrics *observe.Metrics) error {
	client, err := retrieve.NewCorpus(embedder, articles)
	if err != nil {
		return err
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultCorpusTopK
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 0.5
	}

	def := tools.Definition{
		Name: "corpus_search",
		Description: "Semantic search over the pre-indexed article corpus. Use when the " +
			"user asks about topics the corpus covers, before reaching for live sources.",
		Params: map[string]tools.FieldSpec{
			"query": queryField(),
			"section": {
				Type:        tools.FieldString,
				Description: "Optional section filter (e.g., 'world', 'technology').",
				Default:     "",
			},
		},
	}

	return reg.Register(def, func(ctx context.Context, args tools.Args) (string, error) {
		results, err := client.Search(ctx, args.String("query"), topK, threshold, store.SearchFilter{
			Section: args.String("section"),
		})
		if err != nil {
			return "", err
		}
		metrics.RecordRetrievedDocuments(ctx, "corpus_search", len(results))
		return retrieve.FormatChunks(results), nil
	})
}
