package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

const pricingLookupSchema = `{
  "type": "object",
  "properties": {
    "service": {"type": "string", "description": "service name or keyword to look up, e.g. 'KITAS' or 'PT PMA setup'"},
    "category": {"type": "string", "description": "optional category filter: immigration, tax, corporate"}
  },
  "required": ["service"]
}`

// PricingCatalog is a static, read-only lookup table, keyed case-
// insensitively on substrings of ServiceName.
type PricingCatalog struct {
	entries []types.PricingEntry
}

// NewPricingCatalog builds a catalog from a fixed entry list, matching the
// teacher's pattern of loading reference data read-only at startup.
func NewPricingCatalog(entries []types.PricingEntry) *PricingCatalog {
	return &PricingCatalog{entries: entries}
}

// Lookup returns entries whose ServiceName contains query as a
// case-insensitive substring (every entry when query is empty). A non-empty
// category keeps only entries whose Category equals it, ignoring case.
func (c *PricingCatalog) Lookup(query, category string) []types.PricingEntry {
	needle := strings.ToLower(strings.TrimSpace(query))
	category = strings.ToLower(strings.TrimSpace(category))

	var out []types.PricingEntry
	for _, e := range c.entries {
		if category != "" && strings.ToLower(e.Category) != category {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(e.ServiceName), needle) {
			out = append(out, e)
		}
	}
	return out
}

// StructuredPricingLookupTool wraps PricingCatalog as an invocable tool,
// feeding the Calibrator's service descriptors (§4.M3).
type StructuredPricingLookupTool struct {
	catalog *PricingCatalog
	def     *Definition
}

// NewStructuredPricingLookupTool constructs the structured_pricing_lookup
// built-in.
func NewStructuredPricingLookupTool(catalog *PricingCatalog) (*StructuredPricingLookupTool, error) {
	def, err := NewDefinition(
		"structured_pricing_lookup",
		"Look up the authoritative price band for a named immigration, tax, or corporate service.",
		pricingLookupSchema,
	)
	if err != nil {
		return nil, err
	}
	return &StructuredPricingLookupTool{catalog: catalog, def: def}, nil
}

func (t *StructuredPricingLookupTool) Definition() *Definition { return t.def }

func (t *StructuredPricingLookupTool) Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (Result, error) {
	service, _ := args["service"].(string)
	if service == "" {
		return Result{}, fmt.Errorf("tools: structured_pricing_lookup requires a non-empty service")
	}
	category, _ := args["category"].(string)

	entries := t.catalog.Lookup(service, category)
	if len(entries) == 0 {
		return Result{Text: fmt.Sprintf("no pricing entry found for %q", service)}, nil
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: IDR %.0f - %.0f %s\n", e.ServiceName, e.MinPriceIDR, e.MaxPriceIDR, e.Unit)
	}

	return Result{Text: b.String(), Data: map[string]any{"entries": entries}}, nil
}
