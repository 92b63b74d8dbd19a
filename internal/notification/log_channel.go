package notification

import (
	"context"

	"github.com/smartdevs17/token-recycle/internal/models"
)

// LogChannel writes every recycle event to the application log
type LogChannel struct {
	logger *NotificationLogger
}

// NewLogChannel creates a log channel
func NewLogChannel(logger *NotificationLogger) *LogChannel {
	return &LogChannel{logger: logger.WithField("channel", "log")}
}

// Name implements Channel
func (lc *LogChannel) Name() string {
	return "log"
}

// Deliver implements Channel
func (lc *LogChannel) Deliver(ctx context.Context, n *models.Notification) error {
	fields := map[string]interface{}{
		"notification_id": n.ID,
		"type":            string(n.Type),
	}
	if n.Payload != nil {
		for k, v := range n.Payload.Data() {
			fields[k] = v
		}
	}
	lc.logger.Info("Recycle event", fields)
	return nil
}
