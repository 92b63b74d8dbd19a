// File: internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/smartdevs17/token-recycle/pkg/utils"
)

var sqliteDialect = &dialect{
	name:      "sqlite",
	sizeQuery: "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	uniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	},
}

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	*sqlStore
	config     *StorageConfig
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStore: &sqlStore{
			dialect: sqliteDialect,
			logger:  utils.ComponentLogger("sqlite_storage"),
		},
		config:     config,
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// SQLite allows a single writer; one connection serializes commits
	// instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if s.config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(s.config.MaxIdleTime)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to configure SQLite", pragma+": "+err.Error())
		}
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if err := s.connected(); err != nil {
		return err
	}

	s.logger.Info("Starting database migrations")
	if err := applyMigrations(s.db, s.dialect, sqliteMigrationsTable, s.migrations, s.logger); err != nil {
		return err
	}
	s.logger.WithField("migrations", len(s.migrations)).Info("Database migrations completed")
	return nil
}

// GetHealth reports connectivity of the SQLite database
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{
		StorageType: "SQLite",
		Healthy:     s.Ping() == nil,
		Details:     map[string]string{"path": s.config.ConnectionString},
		LastPing:    time.Now(),
	}
	if !health.Healthy {
		s.logger.WithFields(logrus.Fields{"path": s.config.ConnectionString}).Warn("SQLite health check failed")
	}
	return health
}
