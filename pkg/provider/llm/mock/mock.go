// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the agent loop sends correct
// CompletionRequests and to feed controlled decisions without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/vectorpress/vectorpress/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Complete returns CompleteResponses in order, one per call; when the
// scripted responses run out, the last one is repeated. Set CompleteErr to
// fail every call instead. Zero-value fields yield empty responses.
type Provider struct {
	mu sync.Mutex

	// CompleteResponses is the scripted sequence of decisions. A test driving
	// a two-round tool loop supplies two entries: first a response with tool
	// calls, then the final answer.
	CompleteResponses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from every Complete call.
	CompleteErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// Model is returned by ModelID. Defaults to "mock-model" when empty.
	Model string

	// CompleteCalls records every Complete invocation in order.
	CompleteCalls []CompleteCall

	completeIdx int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.CompleteResponses) == 0 {
		return &llm.CompletionResponse{}, nil
	}

	idx := p.completeIdx
	if idx >= len(p.CompleteResponses) {
		idx = len(p.CompleteResponses) - 1
	} else {
		p.completeIdx++
	}
	resp := p.CompleteResponses[idx]
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	return resp, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, nil
}

// ModelID implements llm.Provider.
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-model"
	}
	return p.Model
}

// Reset clears recorded calls and rewinds the scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.completeIdx = 0
}
