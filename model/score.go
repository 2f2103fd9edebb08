package model

import (
	"time"

	"github.com/google/uuid"
)

// Factors holds the normalized inputs of the virality score, each in [0, 1].
type Factors struct {
	Volume     float64 `json:"volume"`
	Growth     float64 `json:"growth"`
	Engagement float64 `json:"engagement"`
	Influence  float64 `json:"influence"`
	Novelty    float64 `json:"novelty"`
	Recency    float64 `json:"recency"`
	Toxicity   float64 `json:"toxicity"`
}

// IdeationInput carries the externally supplied ideation signals for the
// launch readiness score. Missing signals default to zero.
type IdeationInput struct {
	MemeFit       float64 `json:"meme_fit"`
	CopyrightRisk float64 `json:"copyright_risk"`
}

// Score represents the scores of one narrative for one window. Virality is
// clamped to [0, 1], LaunchReadiness is reported unclamped.
type Score struct {
	NarrativeRID    uuid.UUID `json:"narrative_rid"`
	WindowStart     time.Time `json:"window_start"`
	Virality        float64   `json:"virality"`
	LaunchReadiness float64   `json:"launch_readiness"`
	Factors         Factors   `json:"factors"`
}
