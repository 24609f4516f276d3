package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kejora-ai/orchestrator/pkg/retriever"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

const vectorSearchSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "the text to search for"},
    "collection": {"type": "string", "description": "optional collection name to restrict the search to"},
    "limit": {"type": "integer", "description": "maximum number of results, default 5"}
  },
  "required": ["query"]
}`

// VectorSearchTool wraps pkg/retriever.Search as an invocable tool.
type VectorSearchTool struct {
	retriever *retriever.Retriever
	def       *Definition
}

// NewVectorSearchTool constructs the vector_search built-in. The caller's
// access-control ceiling is not fixed at construction: Invoke reads
// state.UserTier per call so one shared Registry correctly enforces each
// request's own tier (§4.T1).
func NewVectorSearchTool(r *retriever.Retriever) (*VectorSearchTool, error) {
	def, err := NewDefinition(
		"vector_search",
		"Search the hybrid dense+sparse document index for passages relevant to a query.",
		vectorSearchSchema,
	)
	if err != nil {
		return nil, err
	}
	return &VectorSearchTool{retriever: r, def: def}, nil
}

func (t *VectorSearchTool) Definition() *Definition { return t.def }

func (t *VectorSearchTool) Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (Result, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return Result{}, fmt.Errorf("tools: vector_search requires a non-empty query")
	}

	collection, _ := args["collection"].(string)

	limit := 5
	if raw, ok := args["limit"]; ok {
		if n, ok := toInt(raw); ok && n > 0 {
			limit = n
		}
	}

	hits, err := t.retriever.Search(ctx, query, state.UserTier, limit, collection)
	if err != nil {
		return Result{}, fmt.Errorf("tools: vector_search: %w", err)
	}

	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. [%s] %s\n%s\n\n", i+1, h.Collection, h.Payload.Title, h.Payload.Body)
	}

	return Result{
		Text: b.String(),
		Data: map[string]any{"hits": hits},
	}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
