// Command vectorpress-ingest runs one batch ingestion pass: it fetches
// articles from a configured archive, embeds their bodies, and inserts them
// into the pgvector article store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vectorpress/vectorpress/internal/config"
	"github.com/vectorpress/vectorpress/internal/ingest"
	"github.com/vectorpress/vectorpress/internal/retrieve"
	"github.com/vectorpress/vectorpress/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	archiveName := flag.String("archive", "", "archive to ingest from (default: the first configured archive)")
	query := flag.String("query", "", "archive search query (empty fetches the section's latest)")
	section := flag.String("section", "technology", "archive section to ingest")
	pageSize := flag.Int("page-size", 50, "articles per archive page")
	maxPages := flag.Int("max-pages", 1, "archive pages to fetch")
	maxArticles := flag.Int("max-articles", 0, "cap on processed articles (0 = no cap)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vectorpress-ingest: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vectorpress-ingest: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archiveCfg, err := selectArchive(cfg, *archiveName)
	if err != nil {
		slog.Error("no usable archive", "err", err)
		return 1
	}

	var archiveOpts []retrieve.ArchiveOption
	if archiveCfg.BaseURL != "" {
		archiveOpts = append(archiveOpts, retrieve.WithArchiveBaseURL(archiveCfg.BaseURL))
	}
	archive, err := retrieve.NewArchive(archiveCfg.Name, archiveCfg.APIKey, archiveOpts...)
	if err != nil {
		slog.Error("failed to create archive client", "err", err)
		return 1
	}

	if cfg.Providers.Embeddings.Name == "" {
		slog.Error("providers.embeddings is required for ingestion")
		return 1
	}
	embedder, err := config.DefaultRegistry().CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Error("store.postgres_dsn is required for ingestion")
		return 1
	}
	dims := cfg.Store.EmbeddingDimensions
	if dims == 0 {
		dims = embedder.Dimensions()
	}
	st, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to connect to article store", "err", err)
		return 1
	}
	defer st.Close()

	pipeline, err := ingest.NewPipeline(archive, embedder, st, nil)
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	stats, err := pipeline.Run(ctx, ingest.Request{
		Query:       *query,
		Section:     *section,
		PageSize:    *pageSize,
		MaxPages:    *maxPages,
		MaxArticles: *maxArticles,
	})
	if err != nil {
		slog.Error("ingestion failed", "err", err)
		return 1
	}

	fmt.Printf("fetched %d, ingested %d, skipped %d, failed %d in %s\n",
		stats.Fetched, stats.Ingested, stats.Skipped, stats.Failed, stats.Duration.Round(10*time.Millisecond))
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// selectArchive picks the named archive from config, or the first one when
// no name is given.
func selectArchive(cfg *config.Config, name string) (config.ArchiveConfig, error) {
	if len(cfg.Tools.Archives) == 0 {
		return config.ArchiveConfig{}, fmt.Errorf("no archives configured under tools.archives")
	}
	if name == "" {
		return cfg.Tools.Archives[0], nil
	}
	for _, ac := range cfg.Tools.Archives {
		if ac.Name == name {
			return ac, nil
		}
	}
	return config.ArchiveConfig{}, fmt.Errorf("archive %q is not configured", name)
}
