// Package tools implements the Tool Registry (§4.M1): a thread-safe registry
// of invocable tools exposed to the Reasoning Engine, directly modeled on the
// teacher's ai/model/tool/{tool.go,definition.go,registry.go}.
package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// Definition is the immutable descriptor an LLM uses to decide when and how
// to call a tool. Once built it is never mutated, matching the teacher's
// Definition immutability guarantee.
type Definition struct {
	name        string
	description string
	inputSchema string
}

func (d *Definition) Name() string        { return d.name }
func (d *Definition) Description() string { return d.description }
func (d *Definition) InputSchema() string { return d.inputSchema }

// NewDefinition builds a Definition. Both name and inputSchema are required.
func NewDefinition(name, description, inputSchema string) (*Definition, error) {
	if name == "" {
		return nil, errors.New("tools: definition name is required")
	}
	if inputSchema == "" {
		return nil, errors.New("tools: definition input schema is required")
	}
	return &Definition{name: name, description: description, inputSchema: inputSchema}, nil
}

// Schema projects the Definition into the shape the gateway injects into a
// model call when tool-calling is enabled.
func (d *Definition) Schema() gateway.ToolSchema {
	return gateway.ToolSchema{
		Name:        d.name,
		Description: d.description,
		InputSchema: d.inputSchema,
	}
}

// Result is what a tool invocation returns to the Reasoning Engine's OBSERVE
// step. Text is what gets appended to the AgentState Observation; Data keeps
// the structured value around for callers that need it untruncated (e.g. the
// Calibrator reading a pricing lookup).
type Result struct {
	Text string
	Data map[string]any
}

// Tool is one invocable capability. State is the caller's *types.AgentState
// so a tool can read prior observations (e.g. to avoid redundant lookups)
// without the registry knowing anything about the reasoning state machine.
type Tool interface {
	Definition() *Definition
	Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (Result, error)
}

// Registry provides thread-safe registration and lookup of tools, mirroring
// the teacher's Registry: duplicate names are silently ignored rather than
// overwriting an existing registration.
type Registry struct {
	mu    sync.RWMutex
	store map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{store: make(map[string]Tool)}
}

// Register adds tools to the registry. A name collision is a no-op.
func (r *Registry) Register(tools ...Tool) *Registry {
	if len(tools) == 0 {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Definition().Name()
		if _, exists := r.store[name]; exists {
			continue
		}
		r.store[name] = t
	}
	return r
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.store[name]
	return t, ok
}

// List returns every registered tool's Definition. Order is not guaranteed.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.store))
	for _, t := range r.store {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Schemas returns the gateway.ToolSchema projection of every registered
// tool, ready to hand to Model.Send when tool-calling is enabled.
func (r *Registry) Schemas() []gateway.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]gateway.ToolSchema, 0, len(r.store))
	for _, t := range r.store {
		schemas = append(schemas, t.Definition().Schema())
	}
	return schemas
}

// Invoke looks up name and calls it, returning an error if it is not
// registered.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, state *types.AgentState) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, errors.New("tools: unknown tool " + name)
	}
	return t.Invoke(ctx, args, state)
}
