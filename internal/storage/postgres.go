package storage

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const pqUniqueViolation = "23505"

var postgresDialect = &dialect{
	name:      "postgres",
	numbered:  true,
	sizeQuery: "SELECT pg_database_size(current_database())",
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
	},
}

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	*sqlStore
	config     *StorageConfig
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStore: &sqlStore{
			dialect: postgresDialect,
			logger:  utils.ComponentLogger("postgres_storage"),
		},
		config:     config,
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	if p.config.MaxConnections > 0 {
		db.SetMaxOpenConns(p.config.MaxConnections)
		db.SetMaxIdleConns(p.config.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if err := p.connected(); err != nil {
		return err
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if err := p.connected(); err != nil {
		return err
	}

	p.logger.Info("Starting PostgreSQL database migrations")
	if err := applyMigrations(p.db, p.dialect, postgresMigrationsTable, p.migrations, p.logger); err != nil {
		return err
	}
	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

// GetHealth reports connectivity of the PostgreSQL database
func (p *PostgreSQLStorage) GetHealth() *StorageHealth {
	stats := sql.DBStats{}
	if p.db != nil {
		stats = p.db.Stats()
	}
	return &StorageHealth{
		StorageType: "PostgreSQL",
		Healthy:     p.Ping() == nil,
		Details: map[string]string{
			"open_connections": strconv.Itoa(stats.OpenConnections),
			"in_use":           strconv.Itoa(stats.InUse),
		},
		LastPing: time.Now(),
	}
}
