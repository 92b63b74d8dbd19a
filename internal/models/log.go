package models

import "time"

// LogEntry represents an operational log row (e.g. failed compensations
// that need manual reconciliation)
type LogEntry struct {
	ID        int64                  `json:"id" db:"id"`
	Type      string                 `json:"type" db:"type"`
	Data      map[string]interface{} `json:"data" db:"data"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
