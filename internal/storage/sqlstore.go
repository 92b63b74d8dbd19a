package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// dialect captures what differs between the SQL backends
type dialect struct {
	name            string
	numbered        bool // $1, $2 placeholders instead of ?
	sizeQuery       string
	uniqueViolation func(error) bool
}

// rebind rewrites ? placeholders for numbered dialects
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements the Storage operations shared by every SQL backend.
// Connection management lives in the backend types that embed it.
type sqlStore struct {
	db      *sql.DB
	dialect *dialect
	logger  *logrus.Entry
}

const stationColumns = `id, owner, name, description, latitude, longitude, recycled_count, is_active, created_at`

const recordColumns = `id, user_address, station_id, token_type, amount, severity, reward, experience_points, timestamp`

const journalColumns = `id, user_address, station_id, source_account, reward_account, reserve_account,
	amount, reward, status, error, created_at, updated_at`

const notificationColumns = `id, type, record_id, payload, status, attempts, created_at, sent_at, error`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *sqlStore) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *sqlStore) connected() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return nil
}

func dbError(message string, err error) error {
	return utils.WrapAppError(utils.ErrCodeDatabase, message, err)
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseAmount(field, value string) (uint64, error) {
	// NUMERIC columns may come back as "123" or "123.0"
	value = strings.TrimSuffix(strings.TrimSpace(value), ".0")
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return v, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Station operations

// CreateStation inserts a new station; an existing id yields ALREADY_EXISTS
func (s *sqlStore) CreateStation(ctx context.Context, station *models.Station) error {
	if err := s.connected(); err != nil {
		return err
	}

	count, err := countParam(station.RecycledCount)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO stations (`+stationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		utils.AddressKey(station.ID), utils.AddressKey(station.Owner), station.Name, station.Description,
		station.Latitude, station.Longitude, count, station.IsActive, station.CreatedAt)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return utils.NewAppError(utils.ErrCodeAlreadyExists, "Station already exists", station.ID.Hex())
		}
		return dbError("Failed to create station", err)
	}
	return nil
}

func scanStation(row rowScanner) (*models.Station, error) {
	var station models.Station
	var id, owner string
	var count int64

	if err := row.Scan(&id, &owner, &station.Name, &station.Description, &station.Latitude,
		&station.Longitude, &count, &station.IsActive, &station.CreatedAt); err != nil {
		return nil, err
	}
	station.ID = common.HexToAddress(id)
	station.Owner = common.HexToAddress(owner)
	station.RecycledCount = uint64(count)
	return &station, nil
}

// GetStation returns the station with the given id or NOT_FOUND
func (s *sqlStore) GetStation(ctx context.Context, id common.Address) (*models.Station, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+stationColumns+` FROM stations WHERE id = ?`), utils.AddressKey(id))
	station, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Station not found", id.Hex())
		}
		return nil, dbError("Failed to get station", err)
	}
	return station, nil
}

// GetStations lists stations, newest first
func (s *sqlStore) GetStations(ctx context.Context, filter models.StationFilter) ([]*models.Station, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query := `SELECT ` + stationColumns + ` FROM stations WHERE 1=1`
	args := []interface{}{}

	if filter.Owner != nil {
		query += " AND owner = ?"
		args = append(args, utils.AddressKey(*filter.Owner))
	}
	if filter.Active != nil {
		query += " AND is_active = ?"
		args = append(args, *filter.Active)
	}
	if b := filter.Bounds; b != nil {
		query += " AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?"
		args = append(args, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	}

	query += " ORDER BY created_at DESC, id ASC"
	query, args = withPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError("Failed to query stations", err)
	}
	defer rows.Close()

	stations := []*models.Station{}
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, dbError("Failed to scan station", err)
		}
		stations = append(stations, station)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate stations", err)
	}
	return stations, nil
}

// countParam converts a recycled_count for the signed BIGINT column
func countParam(count uint64) (int64, error) {
	if count > models.MaxRecycledCount {
		return 0, utils.NewAppError(utils.ErrCodeOverflow, "Recycled count exceeds storage range", strconv.FormatUint(count, 10))
	}
	return int64(count), nil
}

func withPagination(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}

// CommitDisposal implements Storage.CommitDisposal
func (s *sqlStore) CommitDisposal(ctx context.Context, station *models.Station, expectedCount uint64,
	record *models.RecycleRecord, journal *models.DisposalJournal, notification *models.Notification) error {
	if err := s.connected(); err != nil {
		return err
	}

	nextCount, err := countParam(station.RecycledCount)
	if err != nil {
		return err
	}
	prevCount, err := countParam(expectedCount)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(notification.Payload)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to marshal notification payload", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("Failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE stations SET recycled_count = ?
		WHERE id = ? AND recycled_count = ?`),
		nextCount, utils.AddressKey(station.ID), prevCount)
	if err != nil {
		return dbError("Failed to update station count", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return dbError("Failed to get rows affected", err)
	} else if n != 1 {
		return utils.NewAppError(utils.ErrCodeConflict, "Station count changed concurrently", station.ID.Hex())
	}

	committedAt := time.Now()
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO recycle_records (`+recordColumns+`, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		record.ID, utils.AddressKey(record.User), utils.AddressKey(record.Station), utils.AddressKey(record.TokenType),
		formatAmount(record.Amount), int64(record.Severity), int64(record.Reward), int64(record.ExperiencePoints),
		record.Timestamp, committedAt.UnixNano()); err != nil {
		if s.dialect.uniqueViolation(err) {
			return utils.NewAppError(utils.ErrCodeAlreadyExists, "Record already exists", record.ID)
		}
		return dbError("Failed to insert record", err)
	}

	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		notification.ID, string(notification.Type), notification.RecordID, string(payload), notification.Status,
		notification.Attempts, notification.CreatedAt.UnixMilli(), nil, nil); err != nil {
		return dbError("Failed to insert notification", err)
	}

	if _, err := tx.ExecContext(ctx, s.q(`
		UPDATE disposal_journal SET status = ?, error = NULL, updated_at = ?
		WHERE id = ?`),
		string(models.JournalCommitted), committedAt.UnixMilli(), journal.ID); err != nil {
		return dbError("Failed to mark journal committed", err)
	}

	if err := tx.Commit(); err != nil {
		return dbError("Failed to commit disposal", err)
	}

	journal.Status = models.JournalCommitted
	journal.Error = nil
	journal.UpdatedAt = millisToTime(committedAt.UnixMilli())
	return nil
}

// Record operations

func scanRecord(row rowScanner) (*models.RecycleRecord, error) {
	var rec models.RecycleRecord
	var user, station, tokenType, amount string
	var severity, reward, xp int64

	if err := row.Scan(&rec.ID, &user, &station, &tokenType, &amount, &severity, &reward, &xp, &rec.Timestamp); err != nil {
		return nil, err
	}
	v, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	rec.User = common.HexToAddress(user)
	rec.Station = common.HexToAddress(station)
	rec.TokenType = common.HexToAddress(tokenType)
	rec.Amount = v
	rec.Severity = uint8(severity)
	rec.Reward = uint64(reward)
	rec.ExperiencePoints = uint64(xp)
	return &rec, nil
}

// GetRecord returns the record with the given id or NOT_FOUND
func (s *sqlStore) GetRecord(ctx context.Context, id string) (*models.RecycleRecord, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+recordColumns+` FROM recycle_records WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Record not found", id)
		}
		return nil, dbError("Failed to get record", err)
	}
	return rec, nil
}

// GetRecords lists records, newest first
func (s *sqlStore) GetRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RecycleRecord, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM recycle_records WHERE 1=1`
	args := []interface{}{}

	if filter.User != nil {
		query += " AND user_address = ?"
		args = append(args, utils.AddressKey(*filter.User))
	}
	if filter.Station != nil {
		query += " AND station_id = ?"
		args = append(args, utils.AddressKey(*filter.Station))
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}

	query += " ORDER BY timestamp DESC, committed_at DESC"
	query, args = withPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError("Failed to query records", err)
	}
	defer rows.Close()

	records := []*models.RecycleRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, dbError("Failed to scan record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate records", err)
	}
	return records, nil
}

// GetUserSummary aggregates a user's records
func (s *sqlStore) GetUserSummary(ctx context.Context, user common.Address) (*models.UserSummary, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	summary := &models.UserSummary{User: user, TotalBurned: new(big.Int)}
	key := utils.AddressKey(user)

	var reward, xp int64
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*), COALESCE(SUM(reward), 0), COALESCE(SUM(experience_points), 0), MAX(timestamp)
		FROM recycle_records WHERE user_address = ?`), key).
		Scan(&summary.Disposals, &reward, &xp, &last)
	if err != nil {
		return nil, dbError("Failed to summarize records", err)
	}
	summary.TotalReward = uint64(reward)
	summary.ExperiencePoints = uint64(xp)
	if last.Valid {
		summary.LastDisposalAt = &last.Int64
	}

	// amounts span the full uint64 range, so they are summed here
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT amount FROM recycle_records WHERE user_address = ?`), key)
	if err != nil {
		return nil, dbError("Failed to query burned amounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, dbError("Failed to scan amount", err)
		}
		v, err := parseAmount("amount", raw)
		if err != nil {
			return nil, dbError("Failed to parse amount", err)
		}
		summary.TotalBurned.Add(summary.TotalBurned, new(big.Int).SetUint64(v))
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate amounts", err)
	}
	return summary, nil
}

// Disposal journal operations

// SaveJournal inserts or updates a journal entry
func (s *sqlStore) SaveJournal(ctx context.Context, journal *models.DisposalJournal) error {
	if err := s.connected(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO disposal_journal (`+journalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`),
		journal.ID, utils.AddressKey(journal.User), utils.AddressKey(journal.Station),
		utils.AddressKey(journal.SourceAccount), utils.AddressKey(journal.RewardAccount), utils.AddressKey(journal.ReserveAccount),
		formatAmount(journal.Amount), int64(journal.Reward), string(journal.Status), journal.Error,
		journal.CreatedAt.UnixMilli(), journal.UpdatedAt.UnixMilli())
	if err != nil {
		return dbError("Failed to save journal", err)
	}
	return nil
}

func scanJournal(row rowScanner) (*models.DisposalJournal, error) {
	var j models.DisposalJournal
	var user, station, source, rewardAcc, reserve, amount, status string
	var reward, createdAt, updatedAt int64
	var errStr sql.NullString

	if err := row.Scan(&j.ID, &user, &station, &source, &rewardAcc, &reserve,
		&amount, &reward, &status, &errStr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	v, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	j.User = common.HexToAddress(user)
	j.Station = common.HexToAddress(station)
	j.SourceAccount = common.HexToAddress(source)
	j.RewardAccount = common.HexToAddress(rewardAcc)
	j.ReserveAccount = common.HexToAddress(reserve)
	j.Amount = v
	j.Reward = uint64(reward)
	j.Status = models.JournalStatus(status)
	if errStr.Valid {
		j.Error = &errStr.String
	}
	j.CreatedAt = millisToTime(createdAt)
	j.UpdatedAt = millisToTime(updatedAt)
	return &j, nil
}

// GetJournal returns one journal entry or NOT_FOUND
func (s *sqlStore) GetJournal(ctx context.Context, id string) (*models.DisposalJournal, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+journalColumns+` FROM disposal_journal WHERE id = ?`), id)
	j, err := scanJournal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Journal entry not found", id)
		}
		return nil, dbError("Failed to get journal", err)
	}
	return j, nil
}

// GetJournals lists journal entries, newest first, optionally by status
func (s *sqlStore) GetJournals(ctx context.Context, status *models.JournalStatus, limit int) ([]*models.DisposalJournal, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query := `SELECT ` + journalColumns + ` FROM disposal_journal WHERE 1=1`
	args := []interface{}{}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, id ASC"
	query, args = withPagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError("Failed to query journal", err)
	}
	defer rows.Close()

	journals := []*models.DisposalJournal{}
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, dbError("Failed to scan journal", err)
		}
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate journal", err)
	}
	return journals, nil
}

// Notification operations

// SaveNotification inserts or replaces an outbox row
func (s *sqlStore) SaveNotification(ctx context.Context, notification *models.Notification) error {
	if err := s.connected(); err != nil {
		return err
	}

	payload, err := json.Marshal(notification.Payload)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to marshal notification payload", err)
	}

	var sentAt *int64
	if notification.SentAt != nil {
		ms := notification.SentAt.UnixMilli()
		sentAt = &ms
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			sent_at = excluded.sent_at,
			error = excluded.error`),
		notification.ID, string(notification.Type), notification.RecordID, string(payload), notification.Status,
		notification.Attempts, notification.CreatedAt.UnixMilli(), sentAt, notification.Error)
	if err != nil {
		return dbError("Failed to save notification", err)
	}
	return nil
}

// GetPendingNotifications returns the oldest pending outbox rows
func (s *sqlStore) GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE status = ? ORDER BY created_at ASC, id ASC`
	query, args := withPagination(query, []interface{}{models.NotificationPending}, limit, 0)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError("Failed to query pending notifications", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		var nType, payload string
		var createdAt int64
		var sentAt sql.NullInt64
		var errStr sql.NullString

		if err := rows.Scan(&n.ID, &nType, &n.RecordID, &payload, &n.Status, &n.Attempts,
			&createdAt, &sentAt, &errStr); err != nil {
			return nil, dbError("Failed to scan notification", err)
		}
		n.Type = models.NotificationType(nType)
		n.CreatedAt = millisToTime(createdAt)
		if sentAt.Valid {
			t := millisToTime(sentAt.Int64)
			n.SentAt = &t
		}
		if errStr.Valid {
			n.Error = &errStr.String
		}
		n.Payload = &models.RecycleEvent{}
		if err := json.Unmarshal([]byte(payload), n.Payload); err != nil {
			return nil, dbError("Failed to unmarshal notification payload", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate notifications", err)
	}
	return notifications, nil
}

// UpdateNotificationStatus records a delivery attempt
func (s *sqlStore) UpdateNotificationStatus(ctx context.Context, id string, status string, errorMsg *string) error {
	if err := s.connected(); err != nil {
		return err
	}

	var sentAt *int64
	if status == models.NotificationSent {
		ms := time.Now().UnixMilli()
		sentAt = &ms
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, sent_at = COALESCE(?, sent_at), error = ?
		WHERE id = ?`),
		status, sentAt, errorMsg, id)
	if err != nil {
		return dbError("Failed to update notification status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Notification not found", id)
	}
	return nil
}

// Operational logs

// LogEvent appends an operational log row
func (s *sqlStore) LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	if err := s.connected(); err != nil {
		return err
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return dbError("Failed to marshal log data", err)
	}
	_, err = s.db.ExecContext(ctx, s.q("INSERT INTO logs (type, data, created_at) VALUES (?, ?, ?)"),
		eventType, string(dataJSON), time.Now().UnixMilli())
	if err != nil {
		return dbError("Failed to insert log entry", err)
	}
	return nil
}

// GetLogsByType returns the newest log rows of a type
func (s *sqlStore) GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query, args := withPagination("SELECT id, type, data, created_at FROM logs WHERE type = ? ORDER BY id DESC",
		[]interface{}{eventType}, limit, 0)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbError("Failed to query logs", err)
	}
	defer rows.Close()

	logs := []*models.LogEntry{}
	for rows.Next() {
		var log models.LogEntry
		var dataJSON string
		var createdAt int64
		if err := rows.Scan(&log.ID, &log.Type, &dataJSON, &createdAt); err != nil {
			return nil, dbError("Failed to scan log entry", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &log.Data); err != nil {
			return nil, dbError("Failed to unmarshal log data", err)
		}
		log.CreatedAt = millisToTime(createdAt)
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("Failed to iterate logs", err)
	}
	return logs, nil
}

// Statistics

// GetStorageStats returns row counts and database size
func (s *sqlStore) GetStorageStats() (*StorageStats, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	stats := &StorageStats{}
	counts := []struct {
		query string
		args  []interface{}
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM stations", nil, &stats.TotalStations},
		{"SELECT COUNT(*) FROM stations WHERE is_active = ?", []interface{}{true}, &stats.ActiveStations},
		{"SELECT COUNT(*) FROM recycle_records", nil, &stats.TotalRecords},
		{"SELECT COUNT(*) FROM notifications WHERE status = ?", []interface{}{models.NotificationPending}, &stats.PendingNotifications},
		{"SELECT COUNT(*) FROM disposal_journal WHERE status IN (?, ?, ?)",
			[]interface{}{string(models.JournalPending), string(models.JournalBurned), string(models.JournalTransferred)}, &stats.OpenJournals},
		{"SELECT COUNT(*) FROM disposal_journal WHERE status = ?",
			[]interface{}{string(models.JournalCompensationFailed)}, &stats.FailedCompensations},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(s.q(c.query), c.args...).Scan(c.dest); err != nil {
			return nil, dbError("Failed to collect storage stats", err)
		}
	}

	var latest sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(timestamp) FROM recycle_records").Scan(&latest); err == nil && latest.Valid {
		stats.LatestDisposalAt = &latest.Int64
	}

	if err := s.db.QueryRow(s.dialect.sizeQuery).Scan(&stats.DatabaseSize); err != nil {
		stats.DatabaseSize = 0
	}

	return stats, nil
}
