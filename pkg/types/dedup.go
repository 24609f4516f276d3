package types

import "time"

// PublishedItem is one entry in the duplicate filter's rolling window.
// It carries json tags because the window is persisted to disk between
// process restarts.
type PublishedItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	Embedding   []float32 `json:"embedding,omitempty"` // cached for layer-2 semantic comparison
}

// KnownCorrection is a curated rule stating that a model's likely default
// answer about a topic is wrong, with the corrected statement and its
// citation. Loaded read-only at startup.
type KnownCorrection struct {
	ID              string
	TriggerPatterns []string // matched case-insensitively as substrings/regexes
	CorrectionText  string
	SourceCitation  string
	Severity        Severity
}

// Severity ranks a Known Correction's importance.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)
