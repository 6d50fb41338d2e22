package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlArticles = `
CREATE TABLE IF NOT EXISTS articles (
    id           TEXT         PRIMARY KEY,
    title        TEXT         NOT NULL DEFAULT '',
    section      TEXT         NOT NULL DEFAULT '',
    url          TEXT         NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    word_count   INT          NOT NULL DEFAULT 0,
    ingested_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_section
    ON articles (section);

CREATE INDEX IF NOT EXISTS idx_articles_published_at
    ON articles (published_at);
`

// ddlChunksFmt must be formatted with the embedding dimension before execution.
const ddlChunksFmt = `
CREATE TABLE IF NOT EXISTS article_chunks (
    id          BIGSERIAL    PRIMARY KEY,
    article_id  TEXT         NOT NULL REFERENCES articles (id) ON DELETE CASCADE,
    ordinal     INT          NOT NULL,
    content     TEXT         NOT NULL,
    embedding   VECTOR(%d)   NOT NULL,
    UNIQUE (article_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_article_chunks_article_id
    ON article_chunks (article_id);

CREATE INDEX IF NOT EXISTS idx_article_chunks_embedding
    ON article_chunks USING hnsw (embedding vector_cosine_ops);
`

// Migrate installs the pgvector extension and creates the articles and
// article_chunks tables if they do not yet exist.
//
// embeddingDimensions fixes the VECTOR column width; it must match the
// embedding provider used at ingestion and query time.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("migrate: embeddingDimensions must be positive, got %d", embeddingDimensions)
	}

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("migrate: create vector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlArticles); err != nil {
		return fmt.Errorf("migrate: create articles table: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlChunksFmt, embeddingDimensions)); err != nil {
		return fmt.Errorf("migrate: create article_chunks table: %w", err)
	}
	return nil
}
