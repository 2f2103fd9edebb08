package model

import (
	"time"

	"github.com/google/uuid"
)

// Narrative represents a tracked narrative, a persistent cluster of
// related mentions with a centroid in embedding space.
type Narrative struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Label     string    `json:"label"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	Centroid  []float32 `json:"centroid,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Version   int64     `json:"version"`
	// Results
	RecentMentions int     `json:"recent_mentions,omitempty"`
	Mentions       int     `json:"mentions,omitempty"`
	Similarity     float64 `json:"similarity,omitempty"`
}

// Active reports whether the narrative has seen a mention within the
// lookback window ending at now. Inactive narratives are excluded from
// matching but never deleted.
func (n *Narrative) Active(now time.Time, lookback time.Duration) bool {
	return !n.LastSeen.Before(now.Add(-lookback))
}

// CentroidUpdate is the per-narrative outcome of one assignment cycle:
// the new EWMA centroid, metadata refresh and the members to assign.
// ExpectedVersion guards against concurrent centroid writers.
type CentroidUpdate struct {
	NarrativeRID    uuid.UUID   `json:"narrative_rid"`
	Centroid        []float32   `json:"centroid"`
	LastSeen        time.Time   `json:"last_seen"`
	Label           string      `json:"label"`
	Keywords        []string    `json:"keywords,omitempty"`
	ExpectedVersion int64       `json:"expected_version"`
	MentionRIDs     []uuid.UUID `json:"mention_rids"`
}

// NarrativeSeed describes a new narrative formed from a dense cluster of
// pooled mentions. The RID is assigned on insert.
type NarrativeSeed struct {
	Label       string      `json:"label"`
	Category    string      `json:"category,omitempty"`
	Centroid    []float32   `json:"centroid"`
	Keywords    []string    `json:"keywords,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastSeen    time.Time   `json:"last_seen"`
	MentionRIDs []uuid.UUID `json:"mention_rids"`
}
