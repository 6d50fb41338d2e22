// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return pre-canned vectors without a live model and to
// verify which texts were submitted for embedding.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedFunc: func(text string) []float32 { return []float32{1, 0} },
//	    Dims:      2,
//	}
//	vec, _ := p.Embed(ctx, "cyber security")
package mock

import (
	"context"
	"sync"

	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
//
// When EmbedFunc is set it is consulted per text (for both Embed and
// EmbedBatch), which lets tests assign different vectors to different inputs.
// Otherwise the fixed EmbedResult is returned for every text.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, when non-nil, maps each input text to its vector.
	EmbedFunc func(text string) []float32

	// EmbedResult is the fixed vector returned when EmbedFunc is nil.
	EmbedResult []float32

	// Err, if non-nil, is returned from both Embed and EmbedBatch.
	Err error

	// Dims is returned by Dimensions.
	Dims int

	// Model is returned by ModelID. Defaults to "mock-embed" when empty.
	Model string

	// EmbedTexts records every text passed to Embed, in order.
	EmbedTexts []string

	// BatchTexts records every slice passed to EmbedBatch, in order.
	BatchTexts [][]string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedTexts = append(p.EmbedTexts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text), nil
	}
	return p.EmbedResult, nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recorded := make([]string, len(texts))
	copy(recorded, texts)
	p.BatchTexts = append(p.BatchTexts, recorded)

	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if p.EmbedFunc != nil {
			out[i] = p.EmbedFunc(text)
		} else {
			out[i] = p.EmbedResult
		}
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.Dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-embed"
	}
	return p.Model
}
