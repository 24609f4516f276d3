package pipeline

import (
	"regexp"
	"strings"
	"sync"

	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// TopicInsight is one Practical Insight attached when a topic tag is
// detected in the query (§4.M3 Calibrator step 2).
type TopicInsight struct {
	Topic    string
	Keywords []string
	Insight  types.Insight
}

// defaultTopicInsights seeds the topic-tag → insight table for the domains
// named in the spec: immigration / tax / property / employment.
var defaultTopicInsights = []TopicInsight{
	{
		Topic:    "immigration",
		Keywords: []string{"visa", "kitas", "kitap", "immigration", "imigrasi", "permit", "passport"},
		Insight: types.Insight{
			Topic: "immigration",
			Text:  "Immigration matters in Indonesia are handled by Direktorat Jenderal Imigrasi; processing times vary by office and visa class.",
		},
	},
	{
		Topic:    "tax",
		Keywords: []string{"tax", "pajak", "npwp", "pph", "ppn", "withholding"},
		Insight: types.Insight{
			Topic: "tax",
			Text:  "Indonesian tax obligations are administered by Direktorat Jenderal Pajak; filing deadlines and rates depend on taxpayer classification.",
		},
	},
	{
		Topic:    "property",
		Keywords: []string{"property", "tanah", "hak milik", "hak pakai", "land", "real estate"},
		Insight: types.Insight{
			Topic: "property",
			Text:  "Foreign ownership of land in Indonesia is restricted to specific rights classes (e.g. Hak Pakai); direct freehold is not available to foreigners.",
		},
	},
	{
		Topic:    "employment",
		Keywords: []string{"employment", "ketenagakerjaan", "employee", "severance", "pesangon", "labor", "labour"},
		Insight: types.Insight{
			Topic: "employment",
			Text:  "Indonesian labor law (UU Cipta Kerja and its implementing regulations) governs severance, minimum wage, and work-permit sponsorship obligations.",
		},
	},
}

// pricingTopics maps a topic tag to the pricing-catalog category it pulls
// verified service descriptors from, when the topic requires pricing
// (§4.M3 Calibrator step 3).
var pricingTopics = map[string]string{
	"immigration": "immigration",
	"tax":         "tax",
	"property":    "property",
	"employment":  "corporate",
}

// Calibrator is Phase 2 ("the Cell"): a pure, deterministic function — no
// model call. It scans a ReasonerArtifact against a Known Corrections
// catalog, detects topic tags in the query, and attaches verified pricing.
type Calibrator struct {
	corrections []types.KnownCorrection
	insights    []TopicInsight
	catalog     *tools.PricingCatalog

	patternCache map[string]*regexp.Regexp
	mu           sync.Mutex
}

// NewCalibrator builds a Calibrator from a Known Corrections catalog and a
// pricing catalog. insights may be nil to use defaultTopicInsights.
func NewCalibrator(corrections []types.KnownCorrection, catalog *tools.PricingCatalog, insights []TopicInsight) *Calibrator {
	if insights == nil {
		insights = defaultTopicInsights
	}
	return &Calibrator{
		corrections:  corrections,
		insights:     insights,
		catalog:      catalog,
		patternCache: make(map[string]*regexp.Regexp),
	}
}

// Run scans the Reasoner artifact and the original query, producing a
// CalibrationResult. The Calibrator never inspects FinalText — only the
// structured artifact and the query.
func (c *Calibrator) Run(query string, artifact types.ReasonerArtifact) types.CalibrationResult {
	result := types.CalibrationResult{}

	candidates := make([]string, 0, len(artifact.KeyPoints)+len(artifact.Warnings))
	candidates = append(candidates, artifact.KeyPoints...)
	candidates = append(candidates, artifact.Warnings...)

	for _, correction := range c.corrections {
		if c.matchesAny(correction.TriggerPatterns, candidates) {
			result.Corrections = append(result.Corrections, types.AppliedCorrection{
				CorrectionText: correction.CorrectionText,
				SourceCitation: correction.SourceCitation,
				Severity:       correction.Severity,
			})
		}
	}

	topics := c.detectTopics(query)
	for _, topic := range topics {
		for _, ti := range c.insights {
			if ti.Topic == topic {
				result.Insights = append(result.Insights, ti.Insight)
			}
		}
		if c.catalog != nil {
			if category, ok := pricingTopics[topic]; ok {
				// An empty service keyword returns every catalog entry in the
				// topic's category: the Calibrator attaches the topic's whole
				// price list, not a single best-matching service.
				result.Services = append(result.Services, c.catalog.Lookup("", category)...)
			}
		}
	}

	return result
}

// detectTopics returns the topic tags whose keyword lexicon matches the
// query, in defaultTopicInsights order.
func (c *Calibrator) detectTopics(query string) []string {
	lower := strings.ToLower(query)
	var topics []string
	for _, ti := range c.insights {
		for _, kw := range ti.Keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, ti.Topic)
				break
			}
		}
	}
	return topics
}

// matchesAny reports whether any trigger pattern matches any candidate
// string, case-insensitively. A pattern that fails to compile as a regex
// falls back to a plain substring match.
func (c *Calibrator) matchesAny(patterns []string, candidates []string) bool {
	for _, pattern := range patterns {
		re := c.compile(pattern)
		for _, candidate := range candidates {
			if re != nil {
				if re.MatchString(candidate) {
					return true
				}
				continue
			}
			if strings.Contains(strings.ToLower(candidate), strings.ToLower(pattern)) {
				return true
			}
		}
	}
	return false
}

// compile returns a cached case-insensitive regexp for pattern, or nil if
// the pattern does not compile (callers fall back to substring matching).
func (c *Calibrator) compile(pattern string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.patternCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		c.patternCache[pattern] = nil
		return nil
	}
	c.patternCache[pattern] = re
	return re
}
