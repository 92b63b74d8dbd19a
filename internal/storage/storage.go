// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/models"
)

// Storage defines the persistence operations of the recycling service
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Station operations
	CreateStation(ctx context.Context, station *models.Station) error
	GetStation(ctx context.Context, id common.Address) (*models.Station, error)
	GetStations(ctx context.Context, filter models.StationFilter) ([]*models.Station, error)

	// CommitDisposal is the commit point of a disposal. In one transaction it
	// advances the station's recycled_count from expectedCount to
	// station.RecycledCount, inserts the record and the outbox notification
	// and marks the journal committed. A concurrent count change yields CONFLICT.
	CommitDisposal(ctx context.Context, station *models.Station, expectedCount uint64,
		record *models.RecycleRecord, journal *models.DisposalJournal, notification *models.Notification) error

	// Record operations
	GetRecord(ctx context.Context, id string) (*models.RecycleRecord, error)
	GetRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RecycleRecord, error)
	GetUserSummary(ctx context.Context, user common.Address) (*models.UserSummary, error)

	// Disposal journal operations
	SaveJournal(ctx context.Context, journal *models.DisposalJournal) error
	GetJournal(ctx context.Context, id string) (*models.DisposalJournal, error)
	GetJournals(ctx context.Context, status *models.JournalStatus, limit int) ([]*models.DisposalJournal, error)

	// Notification operations
	SaveNotification(ctx context.Context, notification *models.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id string, status string, errorMsg *string) error

	// Operational logs
	LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error
	GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error)

	// Statistics and monitoring
	GetStorageStats() (*StorageStats, error)
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalStations        int64  `json:"total_stations"`
	ActiveStations       int64  `json:"active_stations"`
	TotalRecords         int64  `json:"total_records"`
	PendingNotifications int64  `json:"pending_notifications"`
	OpenJournals         int64  `json:"open_journals"`
	FailedCompensations  int64  `json:"failed_compensations"`
	LatestDisposalAt     *int64 `json:"latest_disposal_at,omitempty"`
	DatabaseSize         int64  `json:"database_size_bytes"`
}

// StorageHealth reports the state of the storage backend
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
