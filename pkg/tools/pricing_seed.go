package tools

import "github.com/kejora-ai/orchestrator/pkg/types"

// defaultPricingEntries seeds the structured_pricing_lookup catalog with the
// service bands the Calibrator's pricingTopics table expects one entry per
// category for (immigration, tax, property, corporate), matching the
// teacher's pattern of loading fixed reference data read-only at startup
// (pkg/pipeline.defaultTopicInsights).
var defaultPricingEntries = []types.PricingEntry{
	{
		ServiceID:   "kitas-work",
		ServiceName: "KITAS (work-sponsored)",
		Category:    "immigration",
		MinPriceIDR: 8_000_000,
		MaxPriceIDR: 15_000_000,
		Unit:        "per year",
		Notes:       "includes IMTA/RPTKA sponsorship filing",
	},
	{
		ServiceID:   "kitap",
		ServiceName: "KITAP",
		Category:    "immigration",
		MinPriceIDR: 15_000_000,
		MaxPriceIDR: 25_000_000,
		Unit:        "per application",
	},
	{
		ServiceID:   "pt-pma-setup",
		ServiceName: "PT PMA company setup",
		Category:    "corporate",
		MinPriceIDR: 25_000_000,
		MaxPriceIDR: 60_000_000,
		Unit:        "per entity",
		Notes:       "excludes the 10B IDR minimum paid-up capital requirement itself",
	},
	{
		ServiceID:   "npwp-registration",
		ServiceName: "NPWP registration",
		Category:    "tax",
		MinPriceIDR: 1_500_000,
		MaxPriceIDR: 3_500_000,
		Unit:        "per application",
	},
	{
		ServiceID:   "monthly-tax-filing",
		ServiceName: "monthly PPh/PPN filing",
		Category:    "tax",
		MinPriceIDR: 2_000_000,
		MaxPriceIDR: 5_000_000,
		Unit:        "per month",
	},
	{
		ServiceID:   "hak-pakai-title",
		ServiceName: "Hak Pakai land title transfer",
		Category:    "property",
		MinPriceIDR: 10_000_000,
		MaxPriceIDR: 40_000_000,
		Unit:        "per transaction",
	},
}

// NewDefaultPricingCatalog builds a PricingCatalog seeded with
// defaultPricingEntries.
func NewDefaultPricingCatalog() *PricingCatalog {
	return NewPricingCatalog(defaultPricingEntries)
}
