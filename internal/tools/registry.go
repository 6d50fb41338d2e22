package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vectorpress/vectorpress/pkg/provider/llm"
)

// ErrUnknownTool is returned by [Registry.Execute] when the model names a
// tool that was never registered.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Handler executes one validated tool call and returns the result text that
// will be fed back to the model.
type Handler func(ctx context.Context, args Args) (string, error)

// Registry is the closed set of tools the agent can dispatch to. It is safe
// for concurrent use; tools are registered during startup and looked up on
// every model turn.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	def     Definition
	handler Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool to the registry. It fails on an empty name, a nil
// handler, or a duplicate registration.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return errors.New("tools: definition has no name")
	}
	if handler == nil {
		return fmt.Errorf("tools: nil handler for tool %q", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: handler}
	return nil
}

// Definitions renders every registered tool as an [llm.ToolDefinition],
// sorted by name, ready to attach to a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, llm.ToolDefinition{
			Name:        e.def.Name,
			Description: e.def.Description,
			Parameters:  e.def.JSONSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute resolves, validates, and runs one tool call from the model.
//
// Failures are ordinary errors: an unregistered name wraps [ErrUnknownTool],
// malformed JSON arguments and schema violations surface as errors too. The
// caller (the agent loop) turns each error into an error-text tool result so
// the conversation can continue.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	raw := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
			return "", fmt.Errorf("tools: malformed arguments for tool %q: %w", call.Name, err)
		}
	}

	args, verr := e.def.Validate(raw)
	if verr != nil {
		return "", verr
	}

	return e.handler(ctx, args)
}
