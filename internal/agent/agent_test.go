package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/tools"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
	llmmock "github.com/vectorpress/vectorpress/pkg/provider/llm/mock"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// echoRegistry registers a single "lookup" tool that echoes its query.
func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	def := tools.Definition{
		Name:        "lookup",
		Description: "Look something up.",
		Params: map[string]tools.FieldSpec{
			"query": {Type: tools.FieldString, Required: true, MinLen: 1},
		},
	}
	err := reg.Register(def, func(_ context.Context, args tools.Args) (string, error) {
		return "result for " + args.String("query"), nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestAdvancePlainAnswer(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "No tools needed."}},
	}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	answer, err := a.Advance(context.Background(), session, "hello")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if answer != "No tools needed." {
		t.Errorf("answer = %q", answer)
	}
	if len(model.CompleteCalls) != 1 {
		t.Errorf("model invoked %d times, want 1", len(model.CompleteCalls))
	}
}

func TestAdvanceToolRound(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Arguments: `{"query":"chips"}`}}},
			{Content: "Here is what I found."},
		},
	}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	answer, err := a.Advance(context.Background(), session, "chip news?")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if answer != "Here is what I found." {
		t.Errorf("answer = %q", answer)
	}

	// History: system, user, decision with call, one result, final decision.
	turns := session.Turns()
	kinds := make([]TurnKind, len(turns))
	for i, turn := range turns {
		kinds[i] = turn.Kind
	}
	want := []TurnKind{TurnSystem, TurnUser, TurnAssistant, TurnToolResult, TurnAssistant}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("turn kinds = %v, want %v", kinds, want)
	}
	result := turns[3]
	if result.ToolCallID != "c1" || result.ToolName != "lookup" || result.IsError {
		t.Errorf("tool result turn = %+v", result)
	}
	if result.Content != "result for chips" {
		t.Errorf("tool result content = %q", result.Content)
	}

	// The second model call must already carry the tool result.
	second := model.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Errorf("second request last message = %+v, want the tool result", last)
	}
}

func TestAdvanceEveryCallAnsweredBeforeNextInvocation(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "lookup", Arguments: `{"query":"a"}`},
				{ID: "c2", Name: "lookup", Arguments: `{"query":"b"}`},
				{ID: "c3", Name: "lookup", Arguments: `{"query":"c"}`},
			}},
			{Content: "done"},
		},
	}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	if _, err := a.Advance(context.Background(), session, "three things"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	second := model.CompleteCalls[1].Req.Messages
	var resultIDs []string
	for _, m := range second {
		if m.Role == "tool" {
			resultIDs = append(resultIDs, m.ToolCallID)
		}
	}
	if fmt.Sprint(resultIDs) != fmt.Sprint([]string{"c1", "c2", "c3"}) {
		t.Errorf("result IDs in request order = %v", resultIDs)
	}
}

func TestAdvanceParallelToolsPreserveOrder(t *testing.T) {
	reg := tools.NewRegistry()
	var mu sync.Mutex
	var started []string
	def := tools.Definition{
		Name: "slow",
		Params: map[string]tools.FieldSpec{
			"query": {Type: tools.FieldString, Required: true},
		},
	}
	err := reg.Register(def, func(_ context.Context, args tools.Args) (string, error) {
		q := args.String("query")
		mu.Lock()
		started = append(started, q)
		mu.Unlock()
		if q == "first" {
			time.Sleep(30 * time.Millisecond)
		}
		return "out " + q, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "slow", Arguments: `{"query":"first"}`},
				{ID: "c2", Name: "slow", Arguments: `{"query":"second"}`},
			}},
			{Content: "done"},
		},
	}
	a, err := New(model, reg, WithParallelTools(true), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	if _, err := a.Advance(context.Background(), session, "both"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Even if "second" finishes before "first", results are appended in
	// request order.
	var contents []string
	for _, turn := range session.Turns() {
		if turn.Kind == TurnToolResult {
			contents = append(contents, turn.Content)
		}
	}
	if fmt.Sprint(contents) != fmt.Sprint([]string{"out first", "out second"}) {
		t.Errorf("results = %v, want request order", contents)
	}
}

func TestAdvanceUnknownToolBecomesErrorResult(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "no_such_tool", Arguments: `{}`}}},
			{Content: "answered anyway"},
		},
	}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	answer, err := a.Advance(context.Background(), session, "hi")
	if err != nil {
		t.Fatalf("unknown tool aborted the turn: %v", err)
	}
	if answer != "answered anyway" {
		t.Errorf("answer = %q", answer)
	}

	var errorResult *Turn
	for _, turn := range session.Turns() {
		if turn.Kind == TurnToolResult {
			errorResult = &turn
		}
	}
	if errorResult == nil {
		t.Fatal("no tool result recorded for the unknown call")
	}
	if !errorResult.IsError || !strings.Contains(errorResult.Content, "no_such_tool") {
		t.Errorf("error result = %+v", errorResult)
	}
}

func TestAdvanceHandlerErrorBecomesErrorResult(t *testing.T) {
	reg := tools.NewRegistry()
	def := tools.Definition{
		Name:   "broken",
		Params: map[string]tools.FieldSpec{},
	}
	if err := reg.Register(def, func(context.Context, tools.Args) (string, error) {
		return "", errors.New("upstream exploded")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "broken", Arguments: `{}`}}},
			{Content: "degraded answer"},
		},
	}
	a, err := New(model, reg, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	if _, err := a.Advance(context.Background(), session, "hi"); err != nil {
		t.Fatalf("handler error aborted the turn: %v", err)
	}
	for _, turn := range session.Turns() {
		if turn.Kind == TurnToolResult {
			if !turn.IsError || !strings.Contains(turn.Content, "upstream exploded") {
				t.Errorf("tool result = %+v", turn)
			}
		}
	}
}

func TestAdvanceModelFailurePropagates(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	_, err = a.Advance(context.Background(), session, "hi")
	var mErr *ModelInvocationError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *ModelInvocationError", err)
	}
	if !strings.Contains(mErr.Error(), "backend down") {
		t.Errorf("err = %v", mErr)
	}
}

func TestAdvanceRoundBound(t *testing.T) {
	// A model that always wants another tool call when tools are offered.
	looping := &loopingModel{}
	a, err := New(looping, echoRegistry(t), WithMaxRounds(3), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	answer, err := a.Advance(context.Background(), session, "loop forever")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if answer != "forced final" {
		t.Errorf("answer = %q", answer)
	}
	// 3 tool rounds plus the forced final invocation without tools.
	if looping.calls != 4 {
		t.Errorf("model invoked %d times, want 4", looping.calls)
	}
}

// loopingModel requests a tool call whenever tools are offered and answers
// plainly once they are withheld.
type loopingModel struct {
	calls int
}

func (m *loopingModel) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.calls++
	if len(req.Tools) > 0 {
		return &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:        fmt.Sprintf("c%d", m.calls),
				Name:      "lookup",
				Arguments: `{"query":"again"}`,
			}},
		}, nil
	}
	return &llm.CompletionResponse{Content: "forced final"}, nil
}

func (m *loopingModel) CountTokens([]llm.Message) (int, error) { return 0, nil }
func (m *loopingModel) ModelID() string                        { return "looping" }

func TestAdvanceTerminatesWhenModelIgnoresWithheldTools(t *testing.T) {
	// The single scripted response repeats forever, so the backend keeps
	// emitting the same tool call even after the round bound withholds the
	// tool definitions. The loop must still come back with an answer.
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "partial answer", ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "lookup", Arguments: `{"query":"chips"}`},
			}},
		},
	}
	a, err := New(model, echoRegistry(t), WithMetrics(testMetrics(t)), WithMaxRounds(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := a.NewSession("s1", 0)

	answer, err := a.Advance(context.Background(), session, "chip news?")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if answer != "partial answer" {
		t.Errorf("answer = %q", answer)
	}

	// One round with tools, one tool-free final invocation, nothing more.
	if len(model.CompleteCalls) != 2 {
		t.Fatalf("model invoked %d times, want 2", len(model.CompleteCalls))
	}
	if len(model.CompleteCalls[1].Req.Tools) != 0 {
		t.Errorf("final invocation still offered %d tools", len(model.CompleteCalls[1].Req.Tools))
	}

	// The ignored calls must not enter the history, or the replayed
	// conversation would carry calls that never get a result.
	turns := session.Turns()
	last := turns[len(turns)-1]
	if last.Kind != TurnAssistant || len(last.ToolCalls) != 0 {
		t.Errorf("final turn = %+v, want a plain assistant answer", last)
	}
}
