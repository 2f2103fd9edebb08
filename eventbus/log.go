package eventbus

import (
	"context"
	"log/slog"

	"github.com/siherrmann/narrative/model"
)

// LogAlertBus writes alerts to the log. It is the fallback when no broker
// is configured.
type LogAlertBus struct {
	log *slog.Logger
}

// NewLogAlertBus creates a bus logging through the given logger.
func NewLogAlertBus(logger *slog.Logger) *LogAlertBus {
	return &LogAlertBus{log: logger}
}

// Publish logs the alert.
func (b *LogAlertBus) Publish(ctx context.Context, alert *model.Alert) error {
	b.log.Info("Alert fired",
		slog.String("narrative_rid", alert.NarrativeRID.String()),
		slog.String("alert_type", string(alert.AlertType)),
		slog.Time("triggered_at", alert.TriggeredAt),
	)
	return nil
}

// Close is a no-op for the log bus.
func (b *LogAlertBus) Close() {}
