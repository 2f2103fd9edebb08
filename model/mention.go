package model

import (
	"time"

	"github.com/google/uuid"
)

// RawMention is a mention as delivered by a source connector, before
// normalization. All fields are untrusted input.
type RawMention struct {
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   Metrics   `json:"metrics,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	Entities  EntitySet `json:"entities,omitempty"`
}

// Mention represents a normalized mention. (source, source_id) is the
// identity used for deduplication across repeated deliveries.
type Mention struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   Metrics   `json:"metrics,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	Entities  EntitySet `json:"entities,omitempty"`
}

// Enrichment holds the derived signals attached to a mention by the
// enrichment stage. Written once, immutable afterwards.
type Enrichment struct {
	MentionRID uuid.UUID `json:"mention_rid"`
	Sentiment  float64   `json:"sentiment"` // In [-1, 1]
	Embedding  []float32 `json:"embedding,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`
	Influence  float64   `json:"influence"`
	Toxicity   float64   `json:"toxicity"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// EnrichedMention joins a mention with its enrichment and its current
// narrative assignment. NarrativeRID is nil while the mention sits in the
// unassigned pool.
type EnrichedMention struct {
	Mention
	Enrichment
	NarrativeRID *uuid.UUID `json:"narrative_rid,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
}
