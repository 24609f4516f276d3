package pipeline

import "github.com/kejora-ai/orchestrator/pkg/types"

// DefaultKnownCorrections seeds the Calibrator's Known Corrections override
// (§4.M3 Phase 2) with the handful of high-stakes misconceptions a model is
// likely to assert confidently and wrongly about Indonesian immigration,
// tax, and corporate law, matching the teacher's pattern of loading fixed
// reference data read-only at startup (defaultTopicInsights in this same
// package).
var DefaultKnownCorrections = []types.KnownCorrection{
	{
		ID:              "freelance-tourist-visa",
		TriggerPatterns: []string{"freelance.*(tourist|visa.?free|b1|b211a)", "work.*tourist visa"},
		CorrectionText:  "Freelancing or any form of paid work in Indonesia on a tourist/visa-exempt entry is not permitted; a KITAS with the correct sponsorship is required regardless of remote/foreign-client status.",
		SourceCitation:  "Immigration Law No. 6/2011, Art. 48",
		Severity:        types.SeverityCritical,
	},
	{
		ID:              "pt-pma-foreign-land-ownership",
		TriggerPatterns: []string{"foreign.*(own|freehold|hak milik).*land", "buy land.*foreign"},
		CorrectionText:  "Foreigners and foreign-owned entities cannot hold Hak Milik (freehold) title; available rights are limited to Hak Pakai (right-to-use) and similar leasehold-style titles.",
		SourceCitation:  "Agrarian Law No. 5/1960, Government Regulation 103/2015",
		Severity:        types.SeverityHigh,
	},
	{
		ID:              "pt-pma-minimum-capital",
		TriggerPatterns: []string{"pt pma.*(no minimum|any amount|small capital)"},
		CorrectionText:  "A PT PMA must meet a minimum paid-up/issued capital of IDR 10 billion (excluding land and buildings) unless the sector falls under a specific BKPM exemption.",
		SourceCitation:  "BKPM Regulation 4/2021",
		Severity:        types.SeverityHigh,
	},
	{
		ID:              "kitas-self-sponsor",
		TriggerPatterns: []string{"kitas.*(self.?sponsor|without sponsor|no sponsor)"},
		CorrectionText:  "A standard work KITAS requires an Indonesian corporate sponsor (RPTKA/IMTA holder); self-sponsorship is only available through the narrower investor-KITAS route tied to a minimum shareholding.",
		SourceCitation:  "Kemnaker Regulation 8/2021",
		Severity:        types.SeverityMedium,
	},
}
