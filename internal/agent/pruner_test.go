package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vectorpress/vectorpress/pkg/provider/llm"
	llmmock "github.com/vectorpress/vectorpress/pkg/provider/llm/mock"
)

func TestPruneCondenses(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "condensed"}},
	}
	p := NewPruner(model, testMetrics(t))
	p.MinInputChars = 0

	out := p.Prune(context.Background(), "chip news", "lots of raw text")
	if out != "condensed" {
		t.Errorf("out = %q", out)
	}

	req := model.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "chip news") {
		t.Error("user request not interpolated into prune instructions")
	}
	if len(req.Tools) != 0 {
		t.Error("pruning request must not offer tools")
	}
}

func TestPruneFallsBackOnError(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("prune model down")}
	p := NewPruner(model, testMetrics(t))
	p.MinInputChars = 0

	if out := p.Prune(context.Background(), "q", "raw text"); out != "raw text" {
		t.Errorf("out = %q, want raw text", out)
	}
}

func TestPruneFallsBackOnEmptyOutput(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "  \n"}},
	}
	p := NewPruner(model, testMetrics(t))
	p.MinInputChars = 0

	if out := p.Prune(context.Background(), "q", "raw text"); out != "raw text" {
		t.Errorf("out = %q, want raw text", out)
	}
}

func TestPruneSkipsShortInput(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "condensed"}},
	}
	p := NewPruner(model, testMetrics(t))

	if out := p.Prune(context.Background(), "q", "short"); out != "short" {
		t.Errorf("out = %q, want short input untouched", out)
	}
	if len(model.CompleteCalls) != 0 {
		t.Error("pruning model invoked for short input")
	}
}
