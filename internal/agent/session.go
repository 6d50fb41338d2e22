// Package agent implements the tool-calling conversation loop: a session
// holds the ordered turn history, the agent drives one user request through
// model decisions and tool executions until the model answers in plain text,
// and the pruner condenses retrieved material before it enters the context
// window.
package agent

import (
	"sync"

	"github.com/vectorpress/vectorpress/pkg/provider/llm"
)

// TurnKind discriminates the variants of a conversation [Turn].
type TurnKind string

const (
	// TurnSystem is the standing instruction turn. At most one exists, at
	// position zero.
	TurnSystem TurnKind = "system"

	// TurnUser is a user request.
	TurnUser TurnKind = "user"

	// TurnAssistant is a model decision: reply text, tool calls, or both.
	TurnAssistant TurnKind = "assistant"

	// TurnToolResult is the outcome of exactly one tool call from the
	// preceding assistant turn.
	TurnToolResult TurnKind = "tool"
)

// Turn is one element of a session's conversation history.
type Turn struct {
	// Kind discriminates which fields are meaningful.
	Kind TurnKind

	// Content is the turn text: instructions, the user request, assistant
	// reply text, or tool result payload.
	Content string

	// ToolCalls holds the calls an assistant turn requested.
	ToolCalls []llm.ToolCall

	// ToolCallID links a tool-result turn to the call it answers.
	ToolCallID string

	// ToolName is the tool that produced a tool-result turn.
	ToolName string

	// IsError marks a tool-result turn that carries an error payload rather
	// than retrieved data.
	IsError bool
}

// DefaultHistoryLimit caps retained non-system turns when no explicit limit
// is configured.
const DefaultHistoryLimit = 40

// Session owns one conversation's ordered turn history. Turns are only ever
// appended; when the history grows past the limit, whole user exchanges are
// dropped from the front so a tool result is never separated from the
// assistant decision that requested it.
//
// A Session is safe for concurrent use, though the agent advances one user
// turn at a time.
type Session struct {
	mu           sync.Mutex
	id           string
	turns        []Turn
	historyLimit int
}

// NewSession creates a session primed with the system instruction turn.
// historyLimit bounds retained non-system turns; zero or negative selects
// [DefaultHistoryLimit].
func NewSession(id, systemPrompt string, historyLimit int) *Session {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	s := &Session{id: id, historyLimit: historyLimit}
	if systemPrompt != "" {
		s.turns = append(s.turns, Turn{Kind: TurnSystem, Content: systemPrompt})
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Turns returns a copy of the current history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset drops everything except the system turn.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 && s.turns[0].Kind == TurnSystem {
		s.turns = s.turns[:1]
		return
	}
	s.turns = nil
}

// AppendUser appends a user request turn.
func (s *Session) AppendUser(text string) {
	s.append(Turn{Kind: TurnUser, Content: text})
}

// AppendAssistant appends a model decision turn.
func (s *Session) AppendAssistant(content string, calls []llm.ToolCall) {
	s.append(Turn{Kind: TurnAssistant, Content: content, ToolCalls: calls})
}

// AppendToolResult appends the outcome of one tool call.
func (s *Session) AppendToolResult(call llm.ToolCall, content string, isError bool) {
	s.append(Turn{
		Kind:       TurnToolResult,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isError,
	})
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Trim drops the oldest user exchanges until the non-system turn count fits
// the history limit. Trimming only cuts at user-turn boundaries: a window
// never starts with an assistant decision or an orphaned tool result.
func (s *Session) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := 0
	if len(s.turns) > 0 && s.turns[0].Kind == TurnSystem {
		base = 1
	}

	for len(s.turns)-base > s.historyLimit {
		// Find the start of the second user exchange and cut before it.
		cut := -1
		seenFirstUser := false
		for i := base; i < len(s.turns); i++ {
			if s.turns[i].Kind != TurnUser {
				continue
			}
			if seenFirstUser {
				cut = i
				break
			}
			seenFirstUser = true
		}
		if cut < 0 {
			// A single oversized exchange cannot be split.
			return
		}
		s.turns = append(s.turns[:base], s.turns[cut:]...)
	}
}

// Messages renders the history in the wire shape the model provider expects.
// The system turn is omitted; it travels as CompletionRequest.SystemPrompt.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Message, 0, len(s.turns))
	for _, t := range s.turns {
		switch t.Kind {
		case TurnSystem:
			continue
		case TurnUser:
			out = append(out, llm.Message{Role: "user", Content: t.Content})
		case TurnAssistant:
			out = append(out, llm.Message{Role: "assistant", Content: t.Content, ToolCalls: t.ToolCalls})
		case TurnToolResult:
			out = append(out, llm.Message{Role: "tool", Content: t.Content, ToolCallID: t.ToolCallID})
		}
	}
	return out
}

// LastUserRequest returns the content of the most recent user turn, or "".
func (s *Session) LastUserRequest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Kind == TurnUser {
			return s.turns[i].Content
		}
	}
	return ""
}
