// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const (
	webhookSource     = "token-recycle"
	webhookVersion    = "1.0"
	maxWebhookBackoff = 30 * time.Second
	maxResponseBody   = 1024
)

// WebhookSender posts recycle events to an HTTP endpoint
type WebhookSender struct {
	config     *WebhookConfig
	logger     *NotificationLogger
	transport  *http.Transport
	httpClient *http.Client
}

// WebhookConfig defines webhook configuration
type WebhookConfig struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Timeout     time.Duration     `json:"timeout"`
	MaxAttempts int               `json:"max_attempts"`
	BaseDelay   time.Duration     `json:"base_delay"`
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     *models.RecycleEvent `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
	Source    string               `json:"source"`
	Type      string               `json:"type"`
	Version   string               `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Error        error         `json:"error,omitempty"`
	Body         string        `json:"body,omitempty"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(config *WebhookConfig, logger *NotificationLogger) (*WebhookSender, error) {
	if err := ValidateWebhookConfig(config); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
	return &WebhookSender{
		config:    config,
		logger:    logger.WithField("component", "webhook_sender"),
		transport: transport,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// Name implements Channel
func (ws *WebhookSender) Name() string {
	return "webhook"
}

// Deliver posts the notification, retrying failed attempts with exponential
// backoff
func (ws *WebhookSender) Deliver(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(&WebhookPayload{
		Event:     n.Payload,
		Timestamp: time.Now().UTC(),
		Source:    webhookSource,
		Type:      string(n.Type),
		Version:   webhookVersion,
	})
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	var last *WebhookResponse
	for attempt := 1; attempt <= ws.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := ws.retryDelay(attempt)
			ws.logger.LogRetryAttempt("webhook", attempt, ws.config.MaxAttempts, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		last = ws.send(ctx, n, payload)
		ws.logger.LogWebhookResponse(ws.config.URL, last.StatusCode, last.ResponseTime, last.Error)
		if last.Success {
			return nil
		}
		if last.StatusCode >= 400 && last.StatusCode < 500 && last.StatusCode != http.StatusTooManyRequests {
			// the receiver rejected the payload; repeating it will not help
			break
		}
	}
	return last.Error
}

func (ws *WebhookSender) send(ctx context.Context, n *models.Notification, payload []byte) *WebhookResponse {
	start := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, ws.config.Method, ws.config.URL, bytes.NewReader(payload))
	if err != nil {
		response.Error = utils.WrapAppError(utils.ErrCodeInternal, "Failed to create webhook request", err)
		return response
	}
	ws.setRequestHeaders(req, n)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(start)
	if err != nil {
		response.Error = utils.WrapAppError(utils.ErrCodeExternal, "Failed to send webhook", err)
		return response
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	response.StatusCode = resp.StatusCode
	response.Body = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
	} else {
		response.Error = utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	}
	return response
}

func (ws *WebhookSender) setRequestHeaders(req *http.Request, n *models.Notification) {
	for key, value := range ws.config.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "Token-Recycle/1.0")
	}

	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	// receivers deduplicate on the record id
	req.Header.Set("X-Record-ID", n.RecordID)
	req.Header.Set("X-Notification-ID", n.ID)
}

// retryDelay doubles the base delay for every attempt after the second
func (ws *WebhookSender) retryDelay(attempt int) time.Duration {
	delay := ws.config.BaseDelay << uint(attempt-2)
	if delay <= 0 || delay > maxWebhookBackoff {
		delay = maxWebhookBackoff
	}
	return delay
}

// Close drops idle keep-alive connections
func (ws *WebhookSender) Close() {
	ws.transport.CloseIdleConnections()
}

// ValidateWebhookConfig validates webhook configuration and fills defaults
func ValidateWebhookConfig(config *WebhookConfig) error {
	if config.URL == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook URL is required", "")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	return nil
}
