package types

import "time"

// Fact is a per-user memory record. SupersededBy is a nullable
// back-reference used for lookup only — it never implies ownership of the
// superseding fact.
type Fact struct {
	ID             string
	OwnerUserID    string
	Text           string
	Extracts       map[string]string
	DerivationID   string // query+response pair id this fact was extracted from
	CreatedAt      time.Time
	SupersededByID string
}

// CollectiveFact is a cross-user fact promoted once enough distinct users
// have independently contributed the same content.
//
// Invariants (§3):
//
//	Promoted  ⇒ len(ContributorIDs) >= PromotionThreshold
//	SourceCount == len(ContributorIDs)
type CollectiveFact struct {
	ID              string
	Content         string
	ContentHash     string
	Category        string
	ContributorIDs  []string
	SourceCount     int
	Promoted        bool
	FirstSeenAt     time.Time
	LastConfirmedAt time.Time
}
