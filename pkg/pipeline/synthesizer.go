package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// DefaultMinChars and DefaultMaxChars bound the Synthesizer's answer length
// (§4.M3 Phase 3) when SynthesizerConfig leaves them unset.
const (
	DefaultMinChars = 200
	DefaultMaxChars = 2000
)

// sycophanticOpeners are prefixes the Synthesizer strips from a model's raw
// answer (§4.M3 Phase 3c): "never starts with a sycophantic opener."
var sycophanticOpeners = []string{
	"great question",
	"i'd be happy to",
	"i would be happy to",
	"certainly!",
	"of course!",
	"absolutely!",
	"sure thing",
}

// closingPhrases is the per-language closing-phrase library (§4.M3 Phase
// 3d): at least 5 phrases per language, never repeated within a session
// (Testable Property 10).
var closingPhrases = map[string][]string{
	"en": {
		"Let me know if you'd like more detail on any of this.",
		"Feel free to ask if anything here needs clarifying.",
		"Happy to go deeper on any of these points.",
		"Reach out if your situation changes and this needs revisiting.",
		"I'm here if you want to walk through next steps.",
	},
	"id": {
		"Jangan ragu untuk bertanya lebih lanjut jika ada yang kurang jelas.",
		"Beri tahu saya jika Anda butuh penjelasan tambahan.",
		"Saya siap membantu jika ada langkah selanjutnya yang ingin dibahas.",
		"Silakan hubungi kembali jika situasinya berubah.",
		"Senang bisa membantu, sampaikan jika ada pertanyaan lain.",
	},
}

// indonesianMarkers are common Indonesian function words used by the
// language detector as a cheap script+keyword heuristic (§4.M3 Phase 3f).
var indonesianMarkers = []string{
	" yang ", " adalah ", " dan ", " untuk ", " dengan ", " tidak ", " saya ", " apa ", " bagaimana ", " bisa ",
}

// SynthesizerConfig tunes one Synthesizer's length bounds and model tier.
type SynthesizerConfig struct {
	Tier     gateway.Tier
	MinChars int
	MaxChars int
}

func (c SynthesizerConfig) withDefaults() SynthesizerConfig {
	if c.MinChars <= 0 {
		c.MinChars = DefaultMinChars
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	return c
}

// Synthesizer is Phase 3 ("the Voice"): the single model call that produces
// the user-facing answer, integrating the ReasonerArtifact and
// CalibrationResult as original content.
type Synthesizer struct {
	gateway *gateway.Gateway
	cfg     SynthesizerConfig

	mu           sync.Mutex
	usedClosings map[string]map[string]bool // sessionID -> phrase -> used
}

// NewSynthesizer builds a Synthesizer.
func NewSynthesizer(gw *gateway.Gateway, cfg SynthesizerConfig) *Synthesizer {
	return &Synthesizer{
		gateway:      gw,
		cfg:          cfg.withDefaults(),
		usedClosings: make(map[string]map[string]bool),
	}
}

// Run produces the final user-facing answer. On model failure it falls back
// to deterministic templating (§4.M3 Phase 3, final paragraph) rather than
// propagating the error — synthesis must always produce an answer.
func (s *Synthesizer) Run(ctx context.Context, sessionID, query string, history []gateway.Message, artifact types.ReasonerArtifact, calibration types.CalibrationResult, cumCost *float64) string {
	lang := detectLanguage(query, history)

	messages := buildSynthesisMessages(query, history, artifact, calibration, lang)

	result, err := s.gateway.SendMessage(ctx, messages, false, nil, s.cfg.Tier, cumCost)
	var raw string
	if err != nil {
		raw = s.fallback(artifact, calibration, lang)
	} else {
		raw = result.Text
	}

	raw = stripSycophanticOpener(raw)
	raw = s.ensureClosing(sessionID, raw, lang, alreadyGreeted(history))
	raw = enforceLengthBounds(raw, artifact, calibration, s.cfg.MinChars, s.cfg.MaxChars)

	return raw
}

// buildSynthesisMessages assembles the Synthesizer's prompt: query, history,
// the Reasoner artifact, the CalibrationResult, and a persona/style
// contract, per §4.M3 Phase 3.
func buildSynthesisMessages(query string, history []gateway.Message, artifact types.ReasonerArtifact, calibration types.CalibrationResult, lang string) []gateway.Message {
	var b strings.Builder
	b.WriteString("You are a precise, professional assistant for Indonesian immigration, tax, and corporate law. ")
	b.WriteString("Write the single final answer the user will read. Integrate the corrections below as if they were ")
	b.WriteString("original content, never call them out as patches or corrections. ")
	b.WriteString(fmt.Sprintf("Reply in %s. Do not open with a sycophantic phrase such as \"great question\".\n\n", languageName(lang)))

	b.WriteString("Key points:\n")
	for _, kp := range artifact.KeyPoints {
		b.WriteString("- " + kp + "\n")
	}
	if len(artifact.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range artifact.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	if len(calibration.Corrections) > 0 {
		b.WriteString("Corrections (authoritative, override any contradicting key point above):\n")
		for _, c := range calibration.Corrections {
			b.WriteString(fmt.Sprintf("- %s (source: %s)\n", c.CorrectionText, c.SourceCitation))
		}
	}
	if len(calibration.Insights) > 0 {
		b.WriteString("Practical insights:\n")
		for _, ins := range calibration.Insights {
			b.WriteString("- " + ins.Text + "\n")
		}
	}
	if len(calibration.Services) > 0 {
		b.WriteString("Verified service pricing:\n")
		for _, svc := range calibration.Services {
			b.WriteString(fmt.Sprintf("- %s: IDR %.0f-%.0f (%s)\n", svc.ServiceName, svc.MinPriceIDR, svc.MaxPriceIDR, svc.Unit))
		}
	}

	messages := make([]gateway.Message, 0, len(history)+2)
	messages = append(messages, gateway.Message{Role: "system", Content: b.String()})
	messages = append(messages, history...)
	messages = append(messages, gateway.Message{Role: "user", Content: query})
	return messages
}

// fallback templates a deterministic answer from the top key points and
// critical corrections when the model call fails (§4.M3 Phase 3, final
// paragraph). Quality is lower but content is correct.
func (s *Synthesizer) fallback(artifact types.ReasonerArtifact, calibration types.CalibrationResult, lang string) string {
	var b strings.Builder

	for _, c := range calibration.Corrections {
		if c.Severity == types.SeverityCritical {
			b.WriteString(c.CorrectionText)
			b.WriteString(" ")
		}
	}
	for i, kp := range artifact.KeyPoints {
		if i >= 5 {
			break
		}
		b.WriteString(kp)
		b.WriteString(" ")
	}
	for _, w := range artifact.Warnings {
		b.WriteString(w)
		b.WriteString(" ")
	}

	if b.Len() == 0 {
		if lang == "id" {
			return "Maaf, saya tidak memiliki cukup informasi untuk menjawab pertanyaan ini saat ini."
		}
		return "I don't have enough information to answer this question right now."
	}
	return strings.TrimSpace(b.String())
}

// stripSycophanticOpener removes a leading sycophantic phrase and any
// punctuation/whitespace immediately following it.
func stripSycophanticOpener(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, opener := range sycophanticOpeners {
		if strings.HasPrefix(lower, opener) {
			rest := trimmed[len(opener):]
			rest = strings.TrimLeft(rest, " !.,:;-")
			if rest == "" {
				return trimmed
			}
			return strings.ToUpper(rest[:1]) + rest[1:]
		}
	}
	return trimmed
}

// ensureClosing appends a closing phrase not yet used this session, in the
// detected language, unless the answer already ends with one of the
// library's phrases. Satisfies Testable Property 10: a closing phrase is
// never repeated within a session.
func (s *Synthesizer) ensureClosing(sessionID, text, lang string, greeted bool) string {
	phrases := closingPhrases[lang]
	if len(phrases) == 0 {
		phrases = closingPhrases["en"]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used, ok := s.usedClosings[sessionID]
	if !ok {
		used = make(map[string]bool)
		s.usedClosings[sessionID] = used
	}

	trimmed := strings.TrimSpace(text)
	for _, phrase := range phrases {
		if strings.HasSuffix(trimmed, phrase) {
			used[phrase] = true
			return trimmed
		}
	}

	for _, phrase := range phrases {
		if !used[phrase] {
			used[phrase] = true
			return strings.TrimSpace(text) + " " + phrase
		}
	}

	// Every phrase in the library has been used this session; reuse is
	// unavoidable, so fall back to the first rather than leaving the
	// answer with no closing at all.
	return strings.TrimSpace(text) + " " + phrases[0]
}

// alreadyGreeted reports whether the assistant has already opened with a
// greeting somewhere in the conversation history (§4.M3 Phase 3e).
func alreadyGreeted(history []gateway.Message) bool {
	greetings := []string{"hello", "hi there", "halo", "selamat"}
	for _, msg := range history {
		if msg.Role != "assistant" {
			continue
		}
		lower := strings.ToLower(msg.Content)
		for _, g := range greetings {
			if strings.HasPrefix(strings.TrimSpace(lower), g) {
				return true
			}
		}
	}
	return false
}

// detectLanguage picks "id" or "en" via a script+keyword heuristic over the
// query and recent user turns (§4.M3 Phase 3f). Indonesian and English
// share the Latin script, so detection relies on common function words
// rather than Unicode ranges.
func detectLanguage(query string, history []gateway.Message) string {
	sample := " " + strings.ToLower(query) + " "
	for _, msg := range history {
		if msg.Role == "user" {
			sample += " " + strings.ToLower(msg.Content) + " "
		}
	}

	hits := 0
	for _, marker := range indonesianMarkers {
		if strings.Contains(sample, marker) {
			hits++
		}
	}
	if hits >= 2 {
		return "id"
	}
	return "en"
}

func languageName(lang string) string {
	if lang == "id" {
		return "Indonesian"
	}
	return "English"
}

// enforceLengthBounds expands under-min answers using the calibration's
// insights, or truncates over-max answers on a sentence boundary — falling
// back to the last whole-word boundary if none exists (§4.M3 Phase 3b).
func enforceLengthBounds(text string, artifact types.ReasonerArtifact, calibration types.CalibrationResult, minChars, maxChars int) string {
	if len(text) < minChars {
		return expandToMinimum(text, artifact, calibration, minChars)
	}
	if len(text) > maxChars {
		return truncateAtBoundary(text, maxChars)
	}
	return text
}

// expandToMinimum appends unused insights and suggestions until the text
// reaches minChars or the supplementary material is exhausted.
func expandToMinimum(text string, artifact types.ReasonerArtifact, calibration types.CalibrationResult, minChars int) string {
	var b strings.Builder
	b.WriteString(text)

	supplements := make([]string, 0, len(calibration.Insights)+len(artifact.Suggestions))
	for _, ins := range calibration.Insights {
		supplements = append(supplements, ins.Text)
	}
	supplements = append(supplements, artifact.Suggestions...)

	for _, s := range supplements {
		if b.Len() >= minChars {
			break
		}
		b.WriteString(" ")
		b.WriteString(s)
	}
	return b.String()
}

// truncateAtBoundary cuts text to at most maxChars, preferring the last
// sentence-ending punctuation (. ! ?) before the limit; if none exists in
// range, it cuts at the last whole-word boundary instead.
func truncateAtBoundary(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	window := text[:maxChars]

	lastSentence := lastIndexAny(window, ".!?")
	if lastSentence >= 0 {
		return strings.TrimSpace(window[:lastSentence+1])
	}

	lastSpace := strings.LastIndexByte(window, ' ')
	if lastSpace > 0 {
		return strings.TrimSpace(window[:lastSpace])
	}
	return strings.TrimSpace(window)
}

// lastIndexAny returns the highest index in s of any byte in chars, or -1.
func lastIndexAny(s, chars string) int {
	idx := -1
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(chars, s[i]) >= 0 {
			idx = i
		}
	}
	return idx
}
