// File: internal/notification/poller.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/storage"
)

// OutboxPoller reads undelivered notifications back from storage
type OutboxPoller struct {
	store     storage.Storage
	batchSize int

	mu           sync.RWMutex
	lastPollTime time.Time
	pollCount    uint64
	errorCount   uint64
	lastFound    int
}

// NewOutboxPoller creates a new outbox poller
func NewOutboxPoller(store storage.Storage, batchSize int) *OutboxPoller {
	return &OutboxPoller{
		store:     store,
		batchSize: batchSize,
	}
}

// Poll returns the oldest pending notifications
func (op *OutboxPoller) Poll(ctx context.Context) ([]*models.Notification, error) {
	op.mu.Lock()
	op.pollCount++
	op.lastPollTime = time.Now()
	op.mu.Unlock()

	pending, err := op.store.GetPendingNotifications(ctx, op.batchSize)
	if err != nil {
		op.recordError()
		return nil, err
	}

	op.mu.Lock()
	op.lastFound = len(pending)
	op.mu.Unlock()
	return pending, nil
}

// GetStats returns poller statistics
func (op *OutboxPoller) GetStats() map[string]interface{} {
	op.mu.RLock()
	defer op.mu.RUnlock()

	return map[string]interface{}{
		"poll_count":     op.pollCount,
		"error_count":    op.errorCount,
		"last_poll_time": op.lastPollTime,
		"last_found":     op.lastFound,
	}
}

func (op *OutboxPoller) recordError() {
	op.mu.Lock()
	op.errorCount++
	op.mu.Unlock()
}
