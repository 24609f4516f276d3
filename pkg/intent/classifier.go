// Package intent implements the Intent Classifier (§4.T1): a fast,
// dependency-free function mapping query text to an intent class that
// governs the Reasoning Engine's step budget and early-exit eligibility.
package intent

import "strings"

// Intent is one of the six classes the orchestrator budgets reasoning steps
// and early-exit eligibility by.
type Intent string

const (
	Greeting          Intent = "greeting"
	Casual            Intent = "casual"
	BusinessSimple    Intent = "business_simple"
	BusinessComplex   Intent = "business_complex"
	BusinessStrategic Intent = "business_strategic"
	DevAICode         Intent = "devai_code"
)

// Default is the most conservative intent: it disables early-exit and
// grants the full step budget. §9's Open Question on the source's
// inconsistent default ("simple" in one init, "business_complex" in
// another) is resolved here in favor of correctness over throughput —
// classifiers override downward only when confident.
const Default = BusinessComplex

var greetingWords = []string{
	"hi", "hello", "hey", "halo", "hai", "selamat pagi", "selamat siang",
	"selamat sore", "selamat malam", "good morning", "good afternoon",
}

var casualWords = []string{
	"thanks", "thank you", "terima kasih", "ok", "oke", "got it", "cool",
	"nice", "bye", "see you", "sampai jumpa",
}

var codeWords = []string{
	"code", "function", "compile", "stack trace", "error:", "golang",
	"python", "kode", "bug", "exception", "script", "api endpoint",
}

var strategicWords = []string{
	"strategy", "strategi", "expansion plan", "multiple entities",
	"restructure", "restrukturisasi", "long-term", "jangka panjang",
	"holding company", "group structure",
}

var complexWords = []string{
	"pt pma", "visa and tax", "cross-border", "multiple licenses",
	"compliance", "merger", "acquisition", "due diligence", "litigation",
	"dispute", "audit",
}

// shortIntentThreshold caps the character length under which a query is
// eligible to be classified as greeting/casual regardless of keyword match,
// preventing a long message that merely opens with "hi" from being treated
// as trivial.
const shortIntentThreshold = 40

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Classify maps query text to an Intent using keyword lexicons and length
// thresholds only — no model call, no external dependency.
func Classify(text string) Intent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if len(trimmed) <= shortIntentThreshold {
		if containsAny(lower, greetingWords) {
			return Greeting
		}
		if containsAny(lower, casualWords) {
			return Casual
		}
	}

	if containsAny(lower, codeWords) {
		return DevAICode
	}
	if containsAny(lower, strategicWords) {
		return BusinessStrategic
	}
	if containsAny(lower, complexWords) {
		return BusinessComplex
	}

	if len(trimmed) <= shortIntentThreshold {
		return BusinessSimple
	}

	// Longer, keyword-less queries are treated conservatively: unclassified
	// complexity defaults to business_complex per the Default resolution
	// above rather than risking a premature early exit.
	return Default
}

// IsConversational reports whether the intent skips retrieval-heavy
// reasoning and follow-up question generation (§4.T2 step 5).
func IsConversational(i Intent) bool {
	return i == Greeting || i == Casual
}

// IsComplex reports whether the intent belongs to the set that must never
// early-exit after a single retrieval (§4.M2 step 4).
func IsComplex(i Intent) bool {
	return i == BusinessComplex || i == BusinessStrategic || i == DevAICode
}

// StepBudget returns the max reasoning steps allotted to the intent.
func StepBudget(i Intent) int {
	switch i {
	case Greeting, Casual:
		return 2
	case BusinessSimple:
		return 5
	default:
		return 10
	}
}
