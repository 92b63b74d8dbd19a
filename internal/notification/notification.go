// File: internal/notification/notification.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smartdevs17/token-recycle/internal/config"
	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// Channel delivers a notification to one destination
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n *models.Notification) error
}

// Notifier defines the notification interface
type Notifier interface {
	Start(ctx context.Context) error
	Stop() error
	IsHealthy() bool

	// Publish hands over the outbox row of a committed disposal. It never
	// blocks; rows that do not fit the queue are picked up by the outbox poll.
	Publish(n *models.Notification)

	AddChannel(channel Channel)
	GetChannels() []string
	GetStats() *NotificationStats
}

// NotificationManager drains the outbox to every configured channel
type NotificationManager struct {
	config  *NotificationManagerConfig
	store   storage.Storage
	logger  *NotificationLogger
	metrics *metrics.Manager
	poller  *OutboxPoller

	queue chan *models.Notification

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	channels []Channel
	inflight map[string]struct{}
	stats    *NotificationStats
}

// NotificationManagerConfig holds notification manager configuration
type NotificationManagerConfig struct {
	Workers             int           `json:"workers"`
	QueueSize           int           `json:"queue_size"`
	PollInterval        time.Duration `json:"poll_interval"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	NotificationTimeout time.Duration `json:"notification_timeout"`
	WebhookURL          string        `json:"webhook_url"`
	LogEvents           bool          `json:"log_events"`
	LogLevel            string        `json:"log_level"`
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64        `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64        `json:"total_notifications_failed"`
	TotalRetriesScheduled    uint64        `json:"total_retries_scheduled"`
	DuplicatesSkipped        uint64        `json:"duplicates_skipped"`
	Deferred                 uint64        `json:"deferred"`
	AverageResponseTime      time.Duration `json:"average_response_time"`
	ActiveChannels           int           `json:"active_channels"`
	QueueLength              int           `json:"queue_length"`
	LastError                *string       `json:"last_error,omitempty"`
	LastErrorTime            *time.Time    `json:"last_error_time,omitempty"`
}

// NotificationHealth summarizes notifier health
type NotificationHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ConfigFromSettings maps application settings onto the manager config
func ConfigFromSettings(cfg *config.NotificationConfig, logLevel string) *NotificationManagerConfig {
	return &NotificationManagerConfig{
		Workers:             cfg.Workers,
		QueueSize:           cfg.QueueSize,
		PollInterval:        cfg.PollInterval,
		MaxRetries:          cfg.MaxRetries,
		RetryDelay:          cfg.RetryDelay,
		NotificationTimeout: cfg.WebhookTimeout,
		WebhookURL:          cfg.WebhookURL,
		LogEvents:           cfg.LogEvents,
		LogLevel:            logLevel,
	}
}

// NewNotificationManager creates a notification manager with the channels
// named in config. metricsManager may be nil.
func NewNotificationManager(config *NotificationManagerConfig, store storage.Storage, metricsManager *metrics.Manager) (*NotificationManager, error) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}

	nm := &NotificationManager{
		config:   config,
		store:    store,
		logger:   NewNotificationLogger(config.LogLevel),
		metrics:  metricsManager,
		poller:   NewOutboxPoller(store, config.QueueSize),
		queue:    make(chan *models.Notification, config.QueueSize),
		inflight: make(map[string]struct{}),
		stats:    &NotificationStats{},
	}

	if config.LogEvents {
		nm.AddChannel(NewLogChannel(nm.logger))
	}
	if config.WebhookURL != "" {
		webhook, err := NewWebhookSender(&WebhookConfig{
			URL:         config.WebhookURL,
			Timeout:     config.NotificationTimeout,
			MaxAttempts: 3,
			BaseDelay:   config.RetryDelay,
		}, nm.logger)
		if err != nil {
			return nil, err
		}
		nm.AddChannel(webhook)
	}

	return nm, nil
}

// Start launches the dispatch workers and the outbox poll loop
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}

	ctx, cancel := context.WithCancel(ctx)
	nm.cancel = cancel
	nm.running = true

	for i := 0; i < nm.config.Workers; i++ {
		nm.wg.Add(1)
		go nm.worker(ctx)
	}
	nm.wg.Add(1)
	go nm.pollLoop(ctx)

	nm.logger.Info("Notification manager started", map[string]interface{}{
		"workers":  nm.config.Workers,
		"channels": len(nm.channels),
	})
	return nil
}

// Stop stops the workers and waits for in-progress deliveries to return
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	if !nm.running {
		nm.mu.Unlock()
		return nil
	}
	nm.running = false
	nm.cancel()
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.RLock()
	for _, ch := range nm.channels {
		if closer, ok := unwrapChannel(ch).(interface{ Close() }); ok {
			closer.Close()
		}
	}
	nm.mu.RUnlock()

	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is running
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Publish implements Notifier
func (nm *NotificationManager) Publish(n *models.Notification) {
	if !nm.claim(n) {
		return
	}

	select {
	case nm.queue <- n:
		nm.updateQueueDepth()
	default:
		nm.release(n)
		nm.mu.Lock()
		nm.stats.Deferred++
		nm.mu.Unlock()
		nm.logger.Warn("Notification queue full, deferring to outbox poll", map[string]interface{}{
			"record_id": n.RecordID,
		})
	}
}

// claim marks the record as in flight; false means it already is
func (nm *NotificationManager) claim(n *models.Notification) bool {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, busy := nm.inflight[n.RecordID]; busy {
		nm.stats.DuplicatesSkipped++
		return false
	}
	nm.inflight[n.RecordID] = struct{}{}
	return true
}

func (nm *NotificationManager) release(n *models.Notification) {
	nm.mu.Lock()
	delete(nm.inflight, n.RecordID)
	nm.mu.Unlock()
}

func (nm *NotificationManager) worker(ctx context.Context) {
	defer nm.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-nm.queue:
			nm.updateQueueDepth()
			nm.dispatch(ctx, n)
			nm.release(n)
		}
	}
}

func (nm *NotificationManager) pollLoop(ctx context.Context) {
	defer nm.wg.Done()

	ticker := time.NewTicker(nm.config.PollInterval)
	defer ticker.Stop()

	// rows left over by a previous process go out right away
	nm.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nm.pollOnce(ctx)
		}
	}
}

func (nm *NotificationManager) pollOnce(ctx context.Context) {
	pending, err := nm.poller.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			nm.logger.Error("Outbox poll failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	for _, n := range pending {
		nm.Publish(n)
	}
}

// dispatch delivers to every channel and records the outcome on the outbox
// row. A failed row stays pending until MaxRetries attempts were made.
func (nm *NotificationManager) dispatch(ctx context.Context, n *models.Notification) {
	start := time.Now()

	nm.mu.RLock()
	channels := make([]Channel, len(nm.channels))
	copy(channels, nm.channels)
	nm.mu.RUnlock()

	var deliveryErr error
	for _, ch := range channels {
		chStart := time.Now()
		err := ch.Deliver(ctx, n)
		nm.logger.LogDelivery(ch.Name(), n, time.Since(chStart), err)
		if err != nil && deliveryErr == nil {
			deliveryErr = err
		}
	}

	if ctx.Err() != nil {
		// shutting down; the row is still pending and will be retried
		return
	}

	status := models.NotificationSent
	var errMsg *string
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		errMsg = &msg
		status = models.NotificationPending
		if n.Attempts+1 >= nm.config.MaxRetries {
			status = models.NotificationFailed
		}
	}

	if err := nm.store.UpdateNotificationStatus(ctx, n.ID, status, errMsg); err != nil {
		nm.logger.Error("Failed to update notification status", map[string]interface{}{
			"notification_id": n.ID,
			"error":           err.Error(),
		})
	}
	n.Attempts++
	n.Status = status

	nm.updateStats(start, status, deliveryErr)
}

func (nm *NotificationManager) updateStats(start time.Time, status string, err error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	switch status {
	case models.NotificationSent:
		nm.stats.TotalNotificationsSent++
	case models.NotificationFailed:
		nm.stats.TotalNotificationsFailed++
	default:
		nm.stats.TotalRetriesScheduled++
	}

	if err != nil {
		msg := err.Error()
		now := time.Now()
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
	}

	elapsed := time.Since(start)
	if nm.stats.AverageResponseTime == 0 {
		nm.stats.AverageResponseTime = elapsed
	} else {
		nm.stats.AverageResponseTime = (nm.stats.AverageResponseTime + elapsed) / 2
	}
}

func (nm *NotificationManager) updateQueueDepth() {
	if nm.metrics != nil {
		nm.metrics.GetPrometheusMetrics().UpdateNotificationQueueDepth(len(nm.queue))
	}
}

// AddChannel registers a delivery channel
func (nm *NotificationManager) AddChannel(channel Channel) {
	if nm.metrics != nil {
		channel = NewChannelWithMetrics(channel, nm.metrics)
	}

	nm.mu.Lock()
	nm.channels = append(nm.channels, channel)
	nm.mu.Unlock()

	nm.logger.Info("Notification channel added", map[string]interface{}{"channel": channel.Name()})
}

// GetChannels returns the names of the registered channels
func (nm *NotificationManager) GetChannels() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	names := make([]string, 0, len(nm.channels))
	for _, ch := range nm.channels {
		names = append(names, ch.Name())
	}
	return names
}

// GetStats returns a snapshot of notification statistics
func (nm *NotificationManager) GetStats() *NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := *nm.stats
	stats.ActiveChannels = len(nm.channels)
	stats.QueueLength = len(nm.queue)
	return &stats
}

// GetPollerStats returns outbox poll statistics
func (nm *NotificationManager) GetPollerStats() map[string]interface{} {
	return nm.poller.GetStats()
}

// GetHealth reports whether the manager runs and its last delivery error
func (nm *NotificationManager) GetHealth() *NotificationHealth {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	health := &NotificationHealth{Healthy: nm.running}
	if nm.stats.LastError != nil {
		health.Error = *nm.stats.LastError
	}
	return health
}
