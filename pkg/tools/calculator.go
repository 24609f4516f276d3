package tools

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

const calculatorSchema = `{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "description": "an arithmetic expression, e.g. '10_000_000_000 * 1.11'"}
  },
  "required": ["expression"]
}`

// CalculatorTool evaluates arithmetic expressions, used by the Reasoning
// Engine for capital-requirement and tax-bracket computations that do not
// need a retrieval round trip.
type CalculatorTool struct {
	def *Definition
}

// NewCalculatorTool constructs the calculator built-in.
func NewCalculatorTool() (*CalculatorTool, error) {
	def, err := NewDefinition(
		"calculator",
		"Evaluate an arithmetic expression and return the numeric result.",
		calculatorSchema,
	)
	if err != nil {
		return nil, err
	}
	return &CalculatorTool{def: def}, nil
}

func (t *CalculatorTool) Definition() *Definition { return t.def }

func (t *CalculatorTool) Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (Result, error) {
	expr, _ := args["expression"].(string)
	if expr == "" {
		return Result{}, fmt.Errorf("tools: calculator requires a non-empty expression")
	}

	result, err := gval.Evaluate(expr, nil)
	if err != nil {
		return Result{}, fmt.Errorf("tools: calculator: invalid expression: %w", err)
	}

	return Result{
		Text: fmt.Sprintf("%v", result),
		Data: map[string]any{"result": result},
	}, nil
}
