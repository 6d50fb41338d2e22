// Package postgres provides a PostgreSQL-backed implementation of the article
// store using pgvector for chunk similarity search.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, 768)
//	if err != nil { … }
//	defer st.Close()
//
//	ok, _ := st.Exists(ctx, "world/2022/oct/21/russia-ukraine-war-latest")
//	hits, _ := st.Search(ctx, queryVec, 10, store.SearchFilter{Section: "world"})
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/vectorpress/vectorpress/pkg/store"
)

// Compile-time interface check.
var _ store.ArticleStore = (*Store)(nil)

// Store is the PostgreSQL-backed article store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the required tables and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [store.Chunk.Embedding] values (e.g., 768 for
// nomic-embed-text). Changing it after the first migration requires a manual
// schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("article store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("article store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("article store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("article store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Exists implements store.ArticleStore. Identity is the upstream article ID;
// no content comparison is involved.
func (s *Store) Exists(ctx context.Context, articleID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, articleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("article store: exists %q: %w", articleID, err)
	}
	return exists, nil
}

// InsertArticle implements store.ArticleStore. Re-inserting an existing ID
// replaces its metadata.
func (s *Store) InsertArticle(ctx context.Context, a store.Article) error {
	if a.ID == "" {
		return fmt.Errorf("article store: insert article: empty ID")
	}

	const q = `
		INSERT INTO articles (id, title, section, url, published_at, word_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    title        = EXCLUDED.title,
		    section      = EXCLUDED.section,
		    url          = EXCLUDED.url,
		    published_at = EXCLUDED.published_at,
		    word_count   = EXCLUDED.word_count`

	_, err := s.pool.Exec(ctx, q, a.ID, a.Title, a.Section, a.URL, a.PublishedAt, a.WordCount)
	if err != nil {
		return fmt.Errorf("article store: insert article %q: %w", a.ID, err)
	}
	return nil
}

// InsertChunks implements store.ArticleStore. The whole chunk set of the
// article is replaced in one transaction so a partially ingested article is
// never visible to Search.
func (s *Store) InsertChunks(ctx context.Context, articleID string, chunks []store.Chunk) error {
	if articleID == "" {
		return fmt.Errorf("article store: insert chunks: empty article ID")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("article store: insert chunks: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM article_chunks WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("article store: insert chunks: clear old: %w", err)
	}

	const q = `
		INSERT INTO article_chunks (article_id, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4)`

	for _, c := range chunks {
		if _, err := tx.Exec(ctx, q, articleID, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("article store: insert chunk %d of %q: %w", c.Ordinal, articleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("article store: insert chunks: commit: %w", err)
	}
	return nil
}

// Search implements store.ArticleStore. It finds the topK chunks whose
// embeddings are closest (cosine distance) to the query embedding, joined
// with their article metadata, optionally narrowed by filter.
//
// pgvector's <=> operator yields cosine distance in [0, 2]; the returned
// Similarity is 1 - distance, so results arrive most similar first.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter store.SearchFilter) ([]store.ChunkResult, error) {
	if topK <= 0 {
		topK = 10
	}

	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Section != "" {
		conditions = append(conditions, "a.section = "+next(filter.Section))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "a.published_at > "+next(filter.After))
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, "a.published_at < "+next(filter.Before))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT a.id, a.title, a.section, a.url, a.published_at, c.content,
		       1 - (c.embedding <=> $1) AS similarity
		FROM   article_chunks c
		JOIN   articles a ON a.id = c.article_id
		%s
		ORDER  BY c.embedding <=> $1
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("article store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ChunkResult, error) {
		var cr store.ChunkResult
		if err := row.Scan(
			&cr.ArticleID,
			&cr.Title,
			&cr.Section,
			&cr.URL,
			&cr.PublishedAt,
			&cr.Content,
			&cr.Similarity,
		); err != nil {
			return store.ChunkResult{}, err
		}
		return cr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("article store: scan rows: %w", err)
	}
	if results == nil {
		results = []store.ChunkResult{}
	}
	return results, nil
}
