package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
)

// prunePromptFmt is the instruction template for the pruning model. The
// active user request is interpolated so the pruner judges relevance against
// what the user is asking right now, not the whole conversation.
const prunePromptFmt = `You condense retrieved news material for another assistant.
The user's current request is:

%s

From the retrieved text below, keep only the passages that help answer that request.
Preserve source headers, names, dates and figures exactly. Remove everything
off-topic. Reply with the condensed text only, no commentary.`

// Pruner condenses retrieved tool output with a secondary, cheaper model
// before the text enters the reasoning model's context window.
//
// Pruning is best-effort: when the pruning model fails or returns nothing,
// the raw text is used unchanged. A degraded prune never loses data.
type Pruner struct {
	model   llm.Provider
	metrics *observe.Metrics
	log     *slog.Logger

	// MinInputChars is the size below which pruning is skipped: the model
	// call would cost more than the context it saves.
	MinInputChars int
}

// defaultMinPruneChars is the size below which pruning is skipped.
const defaultMinPruneChars = 2000

// NewPruner constructs a pruner backed by the given model.
func NewPruner(model llm.Provider, metrics *observe.Metrics) *Pruner {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pruner{
		model:         model,
		metrics:       metrics,
		log:           slog.Default().With("component", "pruner"),
		MinInputChars: defaultMinPruneChars,
	}
}

// Prune condenses raw retrieved text relative to userRequest. It always
// returns usable text: the condensed version on success, the raw text on any
// failure or empty model output.
func (p *Pruner) Prune(ctx context.Context, userRequest, raw string) string {
	if p == nil || p.model == nil {
		return raw
	}
	if len(raw) < p.MinInputChars {
		return raw
	}

	start := time.Now()
	resp, err := p.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(prunePromptFmt, userRequest),
		Messages:     []llm.Message{{Role: "user", Content: raw}},
		Temperature:  0.1,
	})
	p.metrics.PruneDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		p.metrics.RecordProviderError(ctx, p.model.ModelID(), "prune")
		p.log.Warn("pruning failed, using raw text", "model", p.model.ModelID(), "error", err)
		return raw
	}
	condensed := strings.TrimSpace(resp.Content)
	if condensed == "" {
		p.log.Warn("pruning returned empty output, using raw text", "model", p.model.ModelID())
		return raw
	}
	return condensed
}
