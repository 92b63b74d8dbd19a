package recycle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/models"
)

// DefaultActivityLimit is how many records a station activity feed shows
const DefaultActivityLimit = 20

// GetRecord returns a receipt or NOT_FOUND
func (l *Ledger) GetRecord(ctx context.Context, id string) (*models.RecycleRecord, error) {
	return l.store.GetRecord(ctx, id)
}

// StationActivity returns a station's most recent receipts, newest first
func (l *Ledger) StationActivity(ctx context.Context, station common.Address, limit int) ([]*models.RecycleRecord, error) {
	if _, err := l.registry.GetStation(ctx, station); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return l.store.GetRecords(ctx, models.RecordFilter{Station: &station, Limit: limit})
}

// UserRecords returns a user's receipts, newest first
func (l *Ledger) UserRecords(ctx context.Context, user common.Address, limit, offset int) ([]*models.RecycleRecord, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return l.store.GetRecords(ctx, models.RecordFilter{User: &user, Limit: limit, Offset: offset})
}

// UserSummary aggregates a user's disposals
func (l *Ledger) UserSummary(ctx context.Context, user common.Address) (*models.UserSummary, error) {
	return l.store.GetUserSummary(ctx, user)
}

// Journals lists disposal journal entries, optionally filtered by status
func (l *Ledger) Journals(ctx context.Context, status *models.JournalStatus, limit int) ([]*models.DisposalJournal, error) {
	return l.store.GetJournals(ctx, status, limit)
}

// JournalDetail is a journal entry with the reconciliation notes written for it
type JournalDetail struct {
	*models.DisposalJournal
	Reconciliation []*models.LogEntry `json:"reconciliation"`
}

// Journal returns one journal entry and, for disposals that could not be
// rolled back, the notes left for manual reconciliation
func (l *Ledger) Journal(ctx context.Context, id string) (*JournalDetail, error) {
	journal, err := l.store.GetJournal(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &JournalDetail{DisposalJournal: journal, Reconciliation: []*models.LogEntry{}}
	if journal.Status != models.JournalCompensationFailed {
		return detail, nil
	}

	notes, err := l.ReconciliationNotes(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		if note.Data["journal_id"] == id {
			detail.Reconciliation = append(detail.Reconciliation, note)
		}
	}
	return detail, nil
}

// ReconciliationNotes lists disposals that need manual reconciliation,
// newest first
func (l *Ledger) ReconciliationNotes(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	return l.store.GetLogsByType(ctx, LogTypeCompensationFailed, limit)
}
