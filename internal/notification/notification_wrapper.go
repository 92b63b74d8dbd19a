// File: internal/notification/notification_wrapper.go
package notification

import (
	"context"
	"time"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// ChannelWithMetrics wraps a Channel with delivery metrics
type ChannelWithMetrics struct {
	Channel
	metricsManager *metrics.Manager
}

// NewChannelWithMetrics creates a channel wrapper with metrics
func NewChannelWithMetrics(channel Channel, metricsManager *metrics.Manager) *ChannelWithMetrics {
	return &ChannelWithMetrics{
		Channel:        channel,
		metricsManager: metricsManager,
	}
}

// Deliver delivers the notification and records metrics
func (c *ChannelWithMetrics) Deliver(ctx context.Context, n *models.Notification) error {
	start := time.Now()
	err := c.Channel.Deliver(ctx, n)

	prometheus := c.metricsManager.GetPrometheusMetrics()
	if err != nil {
		errorType := utils.ErrorCode(err)
		if errorType == "" {
			errorType = "send_error"
		}
		prometheus.RecordNotificationFailure(c.Name(), string(n.Type), errorType)
	} else {
		prometheus.RecordNotificationSent(c.Name(), string(n.Type), time.Since(start))
	}
	return err
}

func unwrapChannel(ch Channel) Channel {
	if wrapped, ok := ch.(*ChannelWithMetrics); ok {
		return wrapped.Channel
	}
	return ch
}
