package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertTypeSpike          AlertType = "spike"
	AlertTypeGrowth         AlertType = "growth"
	AlertTypeSentimentShift AlertType = "sentiment_shift"
)

// Alert represents a fired alert for a narrative. ThresholdConfig snapshots
// the evaluator configuration at trigger time.
type Alert struct {
	ID              int64      `json:"id"`
	RID             uuid.UUID  `json:"rid"`
	NarrativeRID    uuid.UUID  `json:"narrative_rid"`
	AlertType       AlertType  `json:"alert_type"`
	ThresholdConfig Metadata   `json:"threshold_config,omitempty"`
	TriggeredAt     time.Time  `json:"triggered_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  *string    `json:"acknowledged_by,omitempty"`
}

// Acknowledged reports whether the alert has been acknowledged by an operator.
func (a *Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}
