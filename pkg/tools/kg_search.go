package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kejora-ai/orchestrator/pkg/kg"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

const kgSearchSchema = `{
  "type": "object",
  "properties": {
    "entity": {"type": "string", "description": "free-text mention to resolve to a graph node, e.g. 'PT PMA'"},
    "target": {"type": "string", "description": "optional second entity; when given, the tool looks for a path instead of neighbors"},
    "depth": {"type": "integer", "description": "neighbor traversal depth, max 2"},
    "max_hops": {"type": "integer", "description": "maximum hops allowed when target is given"}
  },
  "required": ["entity"]
}`

// KnowledgeGraphSearchTool wraps pkg/kg's lookup/neighbors/find_path
// operations as a single tool: given an entity mention it resolves a node,
// then returns its neighborhood, or a path to a second entity if given.
type KnowledgeGraphSearchTool struct {
	graph *kg.Graph
	def   *Definition
}

// NewKnowledgeGraphSearchTool constructs the knowledge_graph_search built-in.
func NewKnowledgeGraphSearchTool(g *kg.Graph) (*KnowledgeGraphSearchTool, error) {
	def, err := NewDefinition(
		"knowledge_graph_search",
		"Resolve an entity mention to a knowledge-graph node and return its neighbors, or the path between two entities.",
		kgSearchSchema,
	)
	if err != nil {
		return nil, err
	}
	return &KnowledgeGraphSearchTool{graph: g, def: def}, nil
}

func (t *KnowledgeGraphSearchTool) Definition() *Definition { return t.def }

func (t *KnowledgeGraphSearchTool) Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (Result, error) {
	entity, _ := args["entity"].(string)
	if entity == "" {
		return Result{}, fmt.Errorf("tools: knowledge_graph_search requires a non-empty entity")
	}

	candidates := t.graph.Lookup(entity)
	if len(candidates) == 0 {
		return Result{Text: fmt.Sprintf("no knowledge-graph node matches %q", entity)}, nil
	}
	origin := candidates[0]

	if targetText, ok := args["target"].(string); ok && targetText != "" {
		targets := t.graph.Lookup(targetText)
		if len(targets) == 0 {
			return Result{Text: fmt.Sprintf("no knowledge-graph node matches %q", targetText)}, nil
		}

		maxHops := 4
		if raw, ok := args["max_hops"]; ok {
			if n, ok := toInt(raw); ok && n > 0 {
				maxHops = n
			}
		}

		path, err := t.graph.FindPath(origin.ID, targets[0].ID, maxHops)
		if err != nil {
			return Result{}, fmt.Errorf("tools: knowledge_graph_search: %w", err)
		}
		if path == nil {
			return Result{Text: fmt.Sprintf("no path found between %q and %q within %d hops", entity, targetText, maxHops)}, nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "path from %s to %s (%d hops, weight %.2f):\n", origin.Label, targets[0].Label, path.TotalHops, path.TotalWeight)
		for _, e := range path.Edges {
			fmt.Fprintf(&b, "  %s -[%s]-> %s\n", e.Src, e.Type, e.Dst)
		}
		return Result{Text: b.String(), Data: map[string]any{"path": path}}, nil
	}

	depth := kg.MaxNeighborDepth
	if raw, ok := args["depth"]; ok {
		if n, ok := toInt(raw); ok && n >= 0 {
			depth = n
		}
	}

	sub, err := t.graph.Neighbors(origin.ID, nil, depth)
	if err != nil {
		return Result{}, fmt.Errorf("tools: knowledge_graph_search: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "neighbors of %s:\n", origin.Label)
	for _, n := range sub.Nodes {
		if n.ID == origin.ID {
			continue
		}
		fmt.Fprintf(&b, "  %s (%s)\n", n.Label, n.Type)
	}

	return Result{Text: b.String(), Data: map[string]any{"subgraph": sub}}, nil
}
