package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vectorpress/vectorpress/internal/resilience"
	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
	embedollama "github.com/vectorpress/vectorpress/pkg/provider/embeddings/ollama"
	embedopenai "github.com/vectorpress/vectorpress/pkg/provider/embeddings/openai"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
	"github.com/vectorpress/vectorpress/pkg/provider/llm/anyllm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLLM builds the LLM provider selected by entry. When entry carries
// fallbacks the result is a [resilience.LLMFallback] that fails over to them
// in order.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	primary, err := r.createLLM(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := r.createLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("config: llm fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
	}
	return group, nil
}

func (r *Registry) createLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings builds the embeddings provider selected by entry. When
// entry carries fallbacks the result is a [resilience.EmbeddingsFallback]
// that fails over to them in order.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	primary, err := r.createEmbeddings(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	group := resilience.NewEmbeddingsFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := r.createEmbeddings(fb)
		if err != nil {
			return nil, fmt.Errorf("config: embeddings fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
	}
	return group, nil
}

func (r *Registry) createEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// DefaultRegistry returns a registry pre-populated with every built-in
// provider implementation.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, name := range ValidProviderNames["llm"] {
		r.RegisterLLM(name, func(entry ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}

	r.RegisterEmbeddings("ollama", func(entry ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = embedollama.DefaultBaseURL
		}
		return embedollama.New(baseURL, entry.Model)
	})
	r.RegisterEmbeddings("openai", func(entry ProviderEntry) (embeddings.Provider, error) {
		opts := []embedopenai.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, embedopenai.WithBaseURL(entry.BaseURL))
		}
		return embedopenai.New(entry.APIKey, entry.Model, opts...)
	})

	return r
}
