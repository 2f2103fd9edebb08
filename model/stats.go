package model

import (
	"time"

	"github.com/google/uuid"
)

// WindowStats represents the deterministic aggregates of one narrative over
// one fixed window [WindowStart, WindowEnd). Re-aggregating the same input
// yields bit-identical values.
type WindowStats struct {
	ID            int64        `json:"id"`
	NarrativeRID  uuid.UUID    `json:"narrative_rid"`
	WindowStart   time.Time    `json:"window_start"`
	WindowEnd     time.Time    `json:"window_end"`
	Mentions      int          `json:"mentions"`
	UniqueAuthors int          `json:"unique_authors"`
	AvgEngagement float64      `json:"avg_engagement"`
	GrowthRate    float64      `json:"growth_rate"`
	Sentiment     float64      `json:"sentiment"`
	Sources       SourceShares `json:"sources,omitempty"`
	AvgInfluence  float64      `json:"avg_influence"`
	AvgToxicity   float64      `json:"avg_toxicity"`
}
