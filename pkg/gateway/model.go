// Package gateway implements the Model Gateway (§4.L1): a unified
// send-message interface over an ordered fallback chain of chat models,
// each guarded by its own circuit breaker, with per-query cost accounting.
package gateway

import (
	"context"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// Message is one turn of a chat transcript handed to a Model.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// ToolCall is a structured tool-invocation intent a Model may return instead
// of plain text when tools are enabled.
type ToolCall struct {
	ToolName string
	Args     map[string]any
}

// ModelResult is what a single underlying Model call produces.
type ModelResult struct {
	Text      string
	ToolCalls []ToolCall
	Usage     types.TokenUsage
}

// Model is the minimal capability the gateway needs from any concrete
// provider (OpenAI, Anthropic, a local model, ...). Concrete providers are
// out of scope (§1) and are injected behind this interface, matching the
// teacher's ai/model/chat.Model abstraction.
type Model interface {
	// ID is the logical model identifier used in fallback-chain
	// configuration and circuit-breaker keys (e.g. "flash", "lite").
	ID() string
	// Send issues one call. toolSchemas is non-nil only when the caller
	// requested tool-calling.
	Send(ctx context.Context, messages []Message, toolSchemas []ToolSchema) (ModelResult, error)
}

// ToolSchema is the subset of a Tool Registry descriptor the gateway injects
// into the model call when tools are enabled.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema string
}
