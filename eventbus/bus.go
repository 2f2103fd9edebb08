// Package eventbus delivers fired alerts to downstream consumers.
package eventbus

import (
	"context"

	"github.com/siherrmann/narrative/model"
)

// AlertBus publishes fired alerts.
type AlertBus interface {
	// Publish delivers one alert. Implementations block until the delivery
	// is confirmed or the context is done.
	Publish(ctx context.Context, alert *model.Alert) error
	// Close flushes and releases the underlying transport.
	Close()
}
