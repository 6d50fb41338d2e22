// Package mock provides an in-memory test double for store.ArticleStore.
package mock

import (
	"context"
	"sync"

	"github.com/vectorpress/vectorpress/pkg/store"
)

// Compile-time interface check.
var _ store.ArticleStore = (*Store)(nil)

// Store is an in-memory mock of store.ArticleStore.
//
// Search returns the scripted SearchResults verbatim (no actual vector math);
// tests that need ranking behaviour should script results in the desired
// order. All methods record their inputs.
type Store struct {
	mu sync.Mutex

	// Articles holds inserted metadata keyed by article ID. Pre-populate to
	// simulate an existing corpus.
	Articles map[string]store.Article

	// Chunks holds inserted chunks keyed by article ID.
	Chunks map[string][]store.Chunk

	// SearchResults is returned by Search.
	SearchResults []store.ChunkResult

	// SearchErr, InsertErr and ExistsErr inject failures.
	SearchErr error
	InsertErr error
	ExistsErr error

	// SearchCalls counts Search invocations.
	SearchCalls int

	// LastSearchTopK and LastSearchFilter record the most recent Search arguments.
	LastSearchTopK   int
	LastSearchFilter store.SearchFilter
}

// New creates an empty mock store.
func New() *Store {
	return &Store{
		Articles: make(map[string]store.Article),
		Chunks:   make(map[string][]store.Chunk),
	}
}

// Exists implements store.ArticleStore.
func (s *Store) Exists(ctx context.Context, articleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	_, ok := s.Articles[articleID]
	return ok, nil
}

// InsertArticle implements store.ArticleStore.
func (s *Store) InsertArticle(ctx context.Context, a store.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.Articles[a.ID] = a
	return nil
}

// InsertChunks implements store.ArticleStore.
func (s *Store) InsertChunks(ctx context.Context, articleID string, chunks []store.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	cp := make([]store.Chunk, len(chunks))
	copy(cp, chunks)
	s.Chunks[articleID] = cp
	return nil
}

// Search implements store.ArticleStore.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter store.SearchFilter) ([]store.ChunkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls++
	s.LastSearchTopK = topK
	s.LastSearchFilter = filter
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	out := s.SearchResults
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
