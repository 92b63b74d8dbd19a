// File: internal/notification/logger.go
package notification

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// NotificationLogger handles logging for notification operations
type NotificationLogger struct {
	logger   *logrus.Logger
	logLevel logrus.Level
	context  map[string]interface{}
}

// NewNotificationLogger creates a new notification logger. Messages below
// logLevel are dropped here without touching the global logger level.
func NewNotificationLogger(logLevel string) *NotificationLogger {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	return &NotificationLogger{
		logger:   utils.GetLogger(),
		logLevel: level,
		context:  make(map[string]interface{}),
	}
}

// WithContext adds context to the logger
func (nl *NotificationLogger) WithContext(context map[string]interface{}) *NotificationLogger {
	newLogger := &NotificationLogger{
		logger:   nl.logger,
		logLevel: nl.logLevel,
		context:  make(map[string]interface{}, len(nl.context)+len(context)),
	}
	for k, v := range nl.context {
		newLogger.context[k] = v
	}
	for k, v := range context {
		newLogger.context[k] = v
	}
	return newLogger
}

// WithField adds a single field to the logger context
func (nl *NotificationLogger) WithField(key string, value interface{}) *NotificationLogger {
	return nl.WithContext(map[string]interface{}{key: value})
}

// Debug logs a debug message
func (nl *NotificationLogger) Debug(message string, context ...map[string]interface{}) {
	nl.log(logrus.DebugLevel, message, context...)
}

// Info logs an info message
func (nl *NotificationLogger) Info(message string, context ...map[string]interface{}) {
	nl.log(logrus.InfoLevel, message, context...)
}

// Warn logs a warning message
func (nl *NotificationLogger) Warn(message string, context ...map[string]interface{}) {
	nl.log(logrus.WarnLevel, message, context...)
}

// Error logs an error message
func (nl *NotificationLogger) Error(message string, context ...map[string]interface{}) {
	nl.log(logrus.ErrorLevel, message, context...)
}

func (nl *NotificationLogger) log(level logrus.Level, message string, context ...map[string]interface{}) {
	// logrus orders levels from panic (0) to trace (6)
	if level > nl.logLevel {
		return
	}

	merged := make(logrus.Fields, len(nl.context)+1)
	for k, v := range nl.context {
		merged[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	if _, ok := merged["component"]; !ok {
		merged["component"] = "notification"
	}

	nl.logger.WithFields(merged).Log(level, message)
}

// LogDelivery logs the outcome of one delivery attempt on one channel
func (nl *NotificationLogger) LogDelivery(channel string, n *models.Notification, duration time.Duration, err error) {
	context := map[string]interface{}{
		"channel":         channel,
		"notification_id": n.ID,
		"record_id":       n.RecordID,
		"attempt":         n.Attempts + 1,
		"duration_ms":     duration.Milliseconds(),
	}
	if err != nil {
		context["error"] = err.Error()
		nl.Warn("Notification delivery failed", context)
		return
	}
	nl.Debug("Notification delivered", context)
}

// LogWebhookResponse logs a webhook response
func (nl *NotificationLogger) LogWebhookResponse(url string, statusCode int, duration time.Duration, err error) {
	context := map[string]interface{}{
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		context["error"] = err.Error()
		nl.Error("Webhook failed", context)
	} else {
		nl.Debug("Webhook completed", context)
	}
}

// LogRetryAttempt logs a retry attempt
func (nl *NotificationLogger) LogRetryAttempt(operation string, attempt int, maxAttempts int, delay time.Duration) {
	nl.Warn("Retrying operation", map[string]interface{}{
		"operation":    operation,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"retry_delay":  delay.String(),
	})
}
