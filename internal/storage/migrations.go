package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// checksum returns the hex sha256 of the migration SQL
func (m *Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create stations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stations (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL,
					latitude REAL NOT NULL,
					longitude REAL NOT NULL,
					recycled_count INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_stations_owner ON stations(owner);
				CREATE INDEX IF NOT EXISTS idx_stations_active ON stations(is_active);
			`,
		},
		{
			Version:     "002",
			Description: "Create recycle_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS recycle_records (
					id TEXT PRIMARY KEY,
					user_address TEXT NOT NULL,
					station_id TEXT NOT NULL,
					token_type TEXT NOT NULL,
					amount TEXT NOT NULL, -- decimal uint64
					severity INTEGER NOT NULL,
					reward INTEGER NOT NULL,
					experience_points INTEGER NOT NULL,
					timestamp INTEGER NOT NULL,
					committed_at INTEGER NOT NULL,
					FOREIGN KEY (station_id) REFERENCES stations (id)
				);

				CREATE INDEX IF NOT EXISTS idx_records_user ON recycle_records(user_address);
				CREATE INDEX IF NOT EXISTS idx_records_station ON recycle_records(station_id);
				CREATE INDEX IF NOT EXISTS idx_records_timestamp ON recycle_records(timestamp);
			`,
		},
		{
			Version:     "003",
			Description: "Create disposal_journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS disposal_journal (
					id TEXT PRIMARY KEY,
					user_address TEXT NOT NULL,
					station_id TEXT NOT NULL,
					source_account TEXT NOT NULL,
					reward_account TEXT NOT NULL,
					reserve_account TEXT NOT NULL,
					amount TEXT NOT NULL,
					reward INTEGER NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_journal_status ON disposal_journal(status);
			`,
		},
		{
			Version:     "004",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					record_id TEXT NOT NULL UNIQUE,
					payload TEXT NOT NULL, -- JSON
					status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL,
					sent_at INTEGER,
					error TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
			`,
		},
		{
			Version:     "005",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					type TEXT NOT NULL,
					data TEXT NOT NULL, -- JSON
					created_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create stations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stations (
					id TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL,
					latitude DOUBLE PRECISION NOT NULL,
					longitude DOUBLE PRECISION NOT NULL,
					recycled_count BIGINT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_stations_owner ON stations(owner);
				CREATE INDEX IF NOT EXISTS idx_stations_active ON stations(is_active);
			`,
		},
		{
			Version:     "002",
			Description: "Create recycle_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS recycle_records (
					id TEXT PRIMARY KEY,
					user_address TEXT NOT NULL,
					station_id TEXT NOT NULL REFERENCES stations (id),
					token_type TEXT NOT NULL,
					amount NUMERIC(20, 0) NOT NULL,
					severity SMALLINT NOT NULL,
					reward BIGINT NOT NULL,
					experience_points BIGINT NOT NULL,
					timestamp BIGINT NOT NULL,
					committed_at BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_records_user ON recycle_records(user_address);
				CREATE INDEX IF NOT EXISTS idx_records_station ON recycle_records(station_id);
				CREATE INDEX IF NOT EXISTS idx_records_timestamp ON recycle_records(timestamp);
			`,
		},
		{
			Version:     "003",
			Description: "Create disposal_journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS disposal_journal (
					id TEXT PRIMARY KEY,
					user_address TEXT NOT NULL,
					station_id TEXT NOT NULL,
					source_account TEXT NOT NULL,
					reward_account TEXT NOT NULL,
					reserve_account TEXT NOT NULL,
					amount NUMERIC(20, 0) NOT NULL,
					reward BIGINT NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					created_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_journal_status ON disposal_journal(status);
			`,
		},
		{
			Version:     "004",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					record_id TEXT NOT NULL UNIQUE,
					payload JSONB NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					created_at BIGINT NOT NULL,
					sent_at BIGINT,
					error TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
			`,
		},
		{
			Version:     "005",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id BIGSERIAL PRIMARY KEY,
					type TEXT NOT NULL,
					data JSONB NOT NULL,
					created_at BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
			`,
		},
	}
}

const sqliteMigrationsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	);
`

const postgresMigrationsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		id SERIAL PRIMARY KEY,
		version TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	);
`

// applyMigrations runs every migration not yet recorded in the migrations
// table. An applied migration whose SQL changed is reported as an error.
func applyMigrations(db *sql.DB, d *dialect, tableDDL string, migrations []*Migration, logger *logrus.Entry) error {
	if _, err := db.Exec(tableDDL); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	applied := make(map[string]string)
	rows, err := db.Query("SELECT version, checksum FROM migrations")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read applied migrations", err.Error())
	}
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan migration", err.Error())
		}
		applied[version] = checksum
	}
	rows.Close()

	for _, migration := range migrations {
		sum := migration.checksum()
		if prev, ok := applied[migration.Version]; ok {
			if prev != sum {
				return utils.NewAppError(utils.ErrCodeDatabase,
					fmt.Sprintf("Migration %s was modified after being applied", migration.Version), "")
			}
			continue
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.Begin()
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin migration", err.Error())
		}
		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
		if _, err := tx.Exec(d.rebind("INSERT INTO migrations (version, description, checksum, applied_at) VALUES (?, ?, ?, ?)"),
			migration.Version, migration.Description, sum, time.Now().UnixMilli()); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to record migration %s", migration.Version), err.Error())
		}
		if err := tx.Commit(); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to commit migration %s", migration.Version), err.Error())
		}
	}
	return nil
}
