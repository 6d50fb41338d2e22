package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/tools"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
)

// systemPrompt is the standing instruction for the reasoning model.
const systemPrompt = `You are a helpful news assistant. You answer questions about news and
current events by calling the retrieval tools available to you, in one or more rounds,
before composing your final answer.

Rules:
- Prefer the indexed article corpus for questions your archive may already cover; use
  live news tools for current events and web search for general knowledge.
- Attribute what you report: name the source publication and date when the retrieved
  material carries them.
- When a tool result reports an error or partial data, work with what you have and
  tell the user that the answer may be incomplete.
- Never invent articles, quotes or dates that the retrieved material does not contain.`

// ModelInvocationError wraps a reasoning-model failure. It is the only error
// class that escapes [Agent.Advance]: tool failures are folded into the
// conversation as error results instead.
type ModelInvocationError struct {
	Err error
}

// Error implements the error interface.
func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("agent: model invocation failed: %v", e.Err)
}

// Unwrap returns the underlying provider error.
func (e *ModelInvocationError) Unwrap() error { return e.Err }

// state is the agent's position in one user turn.
type state int

const (
	// stateAwaitingDecision means the next step is a model invocation.
	stateAwaitingDecision state = iota

	// stateExecutingTools means the latest decision carried tool calls that
	// have not all been answered yet.
	stateExecutingTools

	// stateDone means the model produced a plain-text answer.
	stateDone
)

// defaultMaxRounds bounds decision/execution cycles per user turn so a model
// stuck calling tools cannot loop forever.
const defaultMaxRounds = 8

// Option configures an [Agent].
type Option func(*Agent)

// WithPruner routes retrieved tool output through a relevance pruner before
// it enters the conversation.
func WithPruner(p *Pruner) Option {
	return func(a *Agent) { a.pruner = p }
}

// WithParallelTools executes sibling tool calls of one decision concurrently.
// Results are still recorded in the order the model requested the calls.
func WithParallelTools(enabled bool) Option {
	return func(a *Agent) { a.parallelTools = enabled }
}

// WithMaxRounds overrides the per-turn decision cycle bound.
func WithMaxRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithTemperature sets the reasoning model sampling temperature.
func WithTemperature(temp float64) Option {
	return func(a *Agent) { a.temperature = temp }
}

// WithMetrics overrides the metrics sink, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// Agent drives conversations through the tool-calling loop: invoke the model
// with the session history and tool definitions, execute every requested
// call, feed the results back, and repeat until the model answers in text.
type Agent struct {
	model         llm.Provider
	registry      *tools.Registry
	pruner        *Pruner
	metrics       *observe.Metrics
	parallelTools bool
	maxRounds     int
	temperature   float64
	log           *slog.Logger
}

// New constructs an agent over the given reasoning model and tool registry.
func New(model llm.Provider, registry *tools.Registry, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, errors.New("agent: model provider is nil")
	}
	if registry == nil {
		return nil, errors.New("agent: tool registry is nil")
	}
	a := &Agent{
		model:     model,
		registry:  registry,
		maxRounds: defaultMaxRounds,
		log:       slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// NewSession creates a session carrying the agent's system instructions.
func (a *Agent) NewSession(id string, historyLimit int) *Session {
	return NewSession(id, systemPrompt, historyLimit)
}

// Advance drives one user request to completion and returns the model's
// final answer text.
//
// The loop alternates between two phases. In the decision phase the full
// history is replayed to the model with all tool definitions attached. When
// the decision carries tool calls, every call is executed and answered with
// exactly one result turn — success payload or error text — before the model
// is consulted again; the conversation is never advanced with a call left
// unanswered. A decision without tool calls is the final answer.
//
// Tool failures of any kind (unknown name, invalid arguments, adapter error)
// stay inside the conversation as error results for the model to react to.
// Only a reasoning-model failure aborts the turn, as a [*ModelInvocationError].
func (a *Agent) Advance(ctx context.Context, session *Session, userText string) (string, error) {
	if session == nil {
		return "", errors.New("agent: session is nil")
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", errors.New("agent: user text is empty")
	}

	session.AppendUser(userText)
	defer session.Trim()

	defs := a.registry.Definitions()
	st := stateAwaitingDecision

	for round := 0; ; round++ {
		if st != stateAwaitingDecision {
			return "", fmt.Errorf("agent: advancing in unexpected state %d", st)
		}

		req := llm.CompletionRequest{
			Messages:     session.Messages(),
			SystemPrompt: systemPrompt,
			Temperature:  a.temperature,
		}
		// Past the round bound the model must answer with what it has.
		if round < a.maxRounds {
			req.Tools = defs
		}

		start := time.Now()
		resp, err := a.model.Complete(ctx, req)
		a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			a.metrics.RecordProviderError(ctx, a.model.ModelID(), "completion")
			return "", &ModelInvocationError{Err: err}
		}

		if len(resp.ToolCalls) == 0 || round >= a.maxRounds {
			// Past the round bound the request carried no tool definitions,
			// so any calls still returned are a backend bug; recording them
			// would leave the history with calls that never get a result.
			if len(resp.ToolCalls) > 0 {
				a.log.Warn("model returned tool calls without tool definitions, taking text as final",
					"calls", len(resp.ToolCalls))
			}
			session.AppendAssistant(resp.Content, nil)
			st = stateDone
			return resp.Content, nil
		}

		session.AppendAssistant(resp.Content, resp.ToolCalls)

		st = stateExecutingTools
		a.executeCalls(ctx, session, resp.ToolCalls)
		st = stateAwaitingDecision
	}
}

// toolOutcome is the result of one executed call.
type toolOutcome struct {
	content string
	isError bool
}

// executeCalls runs every tool call of one decision and appends one result
// turn per call, in the order the model requested them.
func (a *Agent) executeCalls(ctx context.Context, session *Session, calls []llm.ToolCall) {
	outcomes := make([]toolOutcome, len(calls))

	if a.parallelTools && len(calls) > 1 {
		g, groupCtx := errgroup.WithContext(ctx)
		for i, call := range calls {
			g.Go(func() error {
				outcomes[i] = a.executeOne(groupCtx, session, call)
				return nil
			})
		}
		// Workers only record outcomes, they never return errors.
		_ = g.Wait()
	} else {
		for i, call := range calls {
			outcomes[i] = a.executeOne(ctx, session, call)
		}
	}

	for i, call := range calls {
		session.AppendToolResult(call, outcomes[i].content, outcomes[i].isError)
	}
}

// executeOne dispatches a single call through the registry and converts any
// failure into an error payload for the model.
func (a *Agent) executeOne(ctx context.Context, session *Session, call llm.ToolCall) toolOutcome {
	start := time.Now()
	result, err := a.registry.Execute(ctx, call)
	a.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		toolAttr(call.Name))

	if err != nil {
		a.metrics.RecordToolCall(ctx, call.Name, "error")
		a.log.Warn("tool call failed", "tool", call.Name, "error", err)
		return toolOutcome{
			content: fmt.Sprintf("Tool %q failed: %v. Answer with the information you have and mention the gap.", call.Name, err),
			isError: true,
		}
	}

	a.metrics.RecordToolCall(ctx, call.Name, "ok")
	if a.pruner != nil {
		result = a.pruner.Prune(ctx, session.LastUserRequest(), result)
	}
	return toolOutcome{content: result}
}

func toolAttr(name string) metric.RecordOption {
	return metric.WithAttributes(observe.Attr("tool", name))
}
