package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// CreateStation creates a station and records metrics
func (s *StorageWithMetrics) CreateStation(ctx context.Context, station *models.Station) error {
	start := time.Now()
	err := s.Storage.CreateStation(ctx, station)
	s.record("insert", "stations", start, err)
	return err
}

// GetStation loads a station and records metrics
func (s *StorageWithMetrics) GetStation(ctx context.Context, id common.Address) (*models.Station, error) {
	start := time.Now()
	station, err := s.Storage.GetStation(ctx, id)
	s.record("select", "stations", start, err)
	return station, err
}

// CommitDisposal commits a disposal and records metrics
func (s *StorageWithMetrics) CommitDisposal(ctx context.Context, station *models.Station, expectedCount uint64,
	record *models.RecycleRecord, journal *models.DisposalJournal, notification *models.Notification) error {
	start := time.Now()
	err := s.Storage.CommitDisposal(ctx, station, expectedCount, record, journal, notification)
	s.record("commit", "recycle_records", start, err)
	return err
}

// GetRecords lists records and records metrics
func (s *StorageWithMetrics) GetRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RecycleRecord, error) {
	start := time.Now()
	records, err := s.Storage.GetRecords(ctx, filter)
	s.record("select", "recycle_records", start, err)
	return records, err
}

// SaveJournal saves a journal entry and records metrics
func (s *StorageWithMetrics) SaveJournal(ctx context.Context, journal *models.DisposalJournal) error {
	start := time.Now()
	err := s.Storage.SaveJournal(ctx, journal)
	s.record("upsert", "disposal_journal", start, err)
	return err
}

// UpdateNotificationStatus updates an outbox row and records metrics
func (s *StorageWithMetrics) UpdateNotificationStatus(ctx context.Context, id string, status string, errorMsg *string) error {
	start := time.Now()
	err := s.Storage.UpdateNotificationStatus(ctx, id, status, errorMsg)
	s.record("update", "notifications", start, err)
	return err
}

// GetHealth reports storage health and mirrors it into the component gauge
func (s *StorageWithMetrics) GetHealth() *StorageHealth {
	health := s.Storage.GetHealth()
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", health.Healthy)
	}
	return health
}
