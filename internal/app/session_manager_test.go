package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vectorpress/vectorpress/internal/agent"
	"github.com/vectorpress/vectorpress/internal/tools"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
	llmmock "github.com/vectorpress/vectorpress/pkg/provider/llm/mock"
)

func testAgent(t *testing.T, model llm.Provider) *agent.Agent {
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

	ag, err := agent.New(model, reg, agent.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	return ag
}

func TestSessionManager_AdvanceCreatesSession(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "Hello!"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	reply, err := sm.Advance(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if reply != "Hello!" {
		t.Fatalf("reply = %q, want Hello!", reply)
	}
	if sm.Len() != 1 {
		t.Fatalf("Len = %d, want 1", sm.Len())
	}
}

func TestSessionManager_ReusesSessionHistory(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "First."},
			{Content: "Second."},
		},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	if _, err := sm.Advance(context.Background(), "s1", "one"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := sm.Advance(context.Background(), "s1", "two"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if sm.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (same session)", sm.Len())
	}
	// The second model call must carry the first exchange.
	secondReq := model.CompleteCalls[1].Req
	if len(secondReq.Messages) != 3 {
		t.Fatalf("second request has %d messages, want 3 (user, assistant, user)", len(secondReq.Messages))
	}
}

func TestSessionManager_SeparateSessionsAreIsolated(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "ok"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	if _, err := sm.Advance(context.Background(), "alice", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := sm.Advance(context.Background(), "bob", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if sm.Len() != 2 {
		t.Fatalf("Len = %d, want 2", sm.Len())
	}
	// Bob's first request must not contain Alice's exchange.
	bobReq := model.CompleteCalls[1].Req
	if len(bobReq.Messages) != 1 {
		t.Fatalf("bob's request has %d messages, want 1", len(bobReq.Messages))
	}
}

func TestSessionManager_Reset(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "ok"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	if _, err := sm.Advance(context.Background(), "s1", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	sm.Reset("s1")

	info, ok := sm.Info("s1")
	if !ok {
		t.Fatal("session should survive a reset")
	}
	// Only the pinned system turn remains.
	if info.Turns != 1 {
		t.Fatalf("turns after reset = %d, want 1", info.Turns)
	}
}

func TestSessionManager_Remove(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "ok"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	if err := sm.Remove(context.Background(), "missing"); err == nil {
		t.Fatal("expected error removing unknown session")
	}

	if _, err := sm.Advance(context.Background(), "s1", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := sm.Remove(context.Background(), "s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if sm.Len() != 0 {
		t.Fatalf("Len = %d, want 0", sm.Len())
	}
}

func TestSessionManager_SweepEvictsIdle(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "ok"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0,
		WithIdleTimeout(10*time.Millisecond))

	if _, err := sm.Advance(context.Background(), "stale", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := sm.Advance(context.Background(), "fresh", "hi"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	evicted := sm.Sweep(context.Background())
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := sm.Info("stale"); ok {
		t.Fatal("stale session should be gone")
	}
	if _, ok := sm.Info("fresh"); !ok {
		t.Fatal("fresh session should survive")
	}
}

func TestSessionManager_ListSorted(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "ok"}},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 0)

	for _, id := range []string{"charlie", "alice", "bob"} {
		if _, err := sm.Advance(context.Background(), id, "hi"); err != nil {
			t.Fatalf("Advance(%s): %v", id, err)
		}
	}

	infos := sm.List()
	if len(infos) != 3 {
		t.Fatalf("List returned %d sessions, want 3", len(infos))
	}
	want := []string{"alice", "bob", "charlie"}
	for i, info := range infos {
		if info.SessionID != want[i] {
			t.Fatalf("List[%d] = %q, want %q", i, info.SessionID, want[i])
		}
	}
}

func TestSessionManager_AdvanceSerialisesSameSession(t *testing.T) {
	// The scripted decision repeats, so every advance runs several tool
	// rounds before the loop's round bound forces a final answer. That
	// gives concurrent advances plenty of appends to interleave if the
	// session were not serialised.
	model := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "checking", ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "lookup", Arguments: `{"query":"gpus"}`},
			}},
		},
	}
	sm := NewSessionManager(testAgent(t, model), testMetrics(t), 200)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sm.Advance(context.Background(), "shared", "gpu news?"); err != nil {
				t.Errorf("Advance: %v", err)
			}
		}()
	}
	wg.Wait()

	sm.mu.Lock()
	turns := sm.sessions["shared"].session.Turns()
	sm.mu.Unlock()

	// Every decision's calls must be answered before the conversation moves
	// on: no user or assistant turn may land while results are outstanding.
	pending := make(map[string]int)
	outstanding := 0
	for i, turn := range turns {
		switch turn.Kind {
		case agent.TurnToolResult:
			if pending[turn.ToolCallID] == 0 {
				t.Fatalf("turn %d: result for %q without a pending call", i, turn.ToolCallID)
			}
			pending[turn.ToolCallID]--
			outstanding--
		default:
			if outstanding > 0 {
				t.Fatalf("turn %d (%s): %d tool calls still unanswered", i, turn.Kind, outstanding)
			}
			for _, call := range turn.ToolCalls {
				pending[call.ID]++
				outstanding++
			}
		}
	}
	if outstanding > 0 {
		t.Fatalf("conversation ended with %d unanswered tool calls", outstanding)
	}
}
