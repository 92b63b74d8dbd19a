package recycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/tokens"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// LogTypeCompensationFailed tags log rows that need manual reconciliation
const LogTypeCompensationFailed = "compensation_failed"

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// disposalUnit tracks the journal and the compensations registered so far
// for one disposal
type disposalUnit struct {
	ledger        *Ledger
	journal       *models.DisposalJournal
	compensations []compensation
	logger        *logrus.Entry
}

func (u *disposalUnit) onAbort(step string, undo func(ctx context.Context) error) {
	u.compensations = append(u.compensations, compensation{step: step, undo: undo})
}

// afterFailedCall registers what abort must do about a token ledger call that
// returned an error. When the outcome is unknown no earlier step is undone
// either: the journal is left for manual reconciliation, as recovery does for
// an interrupted burn.
func (u *disposalUnit) afterFailedCall(outcome callOutcome, op string, account common.Address,
	undo func(ctx context.Context) error) {
	switch outcome {
	case callApplied:
		u.onAbort("revert_"+op, undo)
	case callUnknown:
		reached := u.journal.Status
		u.compensations = nil
		u.onAbort("inspect_"+op, func(context.Context) error {
			return fmt.Errorf("%s outcome unknown after journal reached %s; reconcile account %s manually",
				op, reached, account.Hex())
		})
	}
}

// advance persists the next journal status
func (u *disposalUnit) advance(ctx context.Context, status models.JournalStatus) error {
	u.journal.Status = status
	u.journal.UpdatedAt = u.ledger.now()
	return u.ledger.store.SaveJournal(ctx, u.journal)
}

// abort undoes every applied step in reverse order and returns the error the
// caller should see. Compensations run even if ctx was cancelled.
func (u *disposalUnit) abort(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	l := u.ledger

	var failures []error
	for i := len(u.compensations) - 1; i >= 0; i-- {
		c := u.compensations[i]
		err := c.undo(ctx)
		status := "success"
		if err != nil {
			status = "error"
			failures = append(failures, err)
			u.logger.WithError(err).WithField("step", c.step).Error("Compensation failed")
		}
		if l.metrics != nil {
			l.metrics.GetPrometheusMetrics().RecordCompensation(c.step, status)
		}
	}

	msg := cause.Error()
	u.journal.Error = &msg
	u.journal.UpdatedAt = l.now()

	if len(failures) == 0 {
		u.journal.Status = models.JournalRolledBack
		if err := l.store.SaveJournal(ctx, u.journal); err != nil {
			u.logger.WithError(err).Warn("Failed to mark journal rolled back")
		}
		u.logger.WithError(cause).Warn("Disposal rolled back")
		return cause
	}

	u.journal.Status = models.JournalCompensationFailed
	if err := l.store.SaveJournal(ctx, u.journal); err != nil {
		u.logger.WithError(err).Error("Failed to mark journal compensation_failed")
	}

	joined := errors.Join(append([]error{cause}, failures...)...)
	if err := l.store.LogEvent(ctx, LogTypeCompensationFailed, map[string]interface{}{
		"journal_id":      u.journal.ID,
		"user":            u.journal.User.Hex(),
		"station":         u.journal.Station.Hex(),
		"source_account":  u.journal.SourceAccount.Hex(),
		"reward_account":  u.journal.RewardAccount.Hex(),
		"reserve_account": u.journal.ReserveAccount.Hex(),
		"amount":          u.journal.Amount,
		"reward":          u.journal.Reward,
		"error":           joined.Error(),
	}); err != nil {
		u.logger.WithError(err).Error("Failed to write compensation log")
	}

	return utils.WrapAppError(utils.ErrCodeCompensation, "Disposal could not be rolled back", joined)
}

// RecoveryReport summarizes a RecoverOpenJournals pass
type RecoveryReport struct {
	Examined   int `json:"examined"`
	RolledBack int `json:"rolled_back"`
	Failed     int `json:"failed"`
}

// RecoverOpenJournals compensates disposals left unfinished by a previous
// process. It must run before the ledger serves requests.
func (l *Ledger) RecoverOpenJournals(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}

	for _, status := range []models.JournalStatus{models.JournalPending, models.JournalBurned, models.JournalTransferred} {
		s := status
		journals, err := l.store.GetJournals(ctx, &s, 0)
		if err != nil {
			return report, err
		}

		for _, journal := range journals {
			report.Examined++
			if l.recoverJournal(ctx, journal) {
				report.RolledBack++
			} else {
				report.Failed++
			}
		}
	}

	if report.Examined > 0 {
		l.logger.WithFields(logrus.Fields{
			"examined":    report.Examined,
			"rolled_back": report.RolledBack,
			"failed":      report.Failed,
		}).Warn("Recovered unfinished disposals")
	}
	return report, nil
}

func (l *Ledger) recoverJournal(ctx context.Context, journal *models.DisposalJournal) bool {
	unit := &disposalUnit{
		ledger:  l,
		journal: journal,
		logger:  l.logger.WithField("journal_id", journal.ID),
	}

	switch journal.Status {
	case models.JournalPending:
		// the burn may or may not have reached the token ledger
		unit.onAbort("inspect_burn", func(context.Context) error {
			return errors.New("interrupted before burn was confirmed; reconcile source balance manually")
		})
	case models.JournalTransferred:
		unit.onAbort(tokens.OpRevertBurn, func(ctx context.Context) error {
			return l.tokens.RevertBurn(ctx, journal.SourceAccount, journal.Amount)
		})
		if journal.Reward > 0 {
			unit.onAbort(tokens.OpRevertTransfer, func(ctx context.Context) error {
				return l.tokens.RevertTransfer(ctx, journal.ReserveAccount, journal.RewardAccount, journal.Reward)
			})
		}
	case models.JournalBurned:
		if journal.Reward > 0 {
			// a transfer may have been sent without being journaled
			unit.onAbort("inspect_transfer", func(context.Context) error {
				return errors.New("interrupted after burn; reward transfer state unknown, reconcile manually")
			})
			break
		}
		unit.onAbort(tokens.OpRevertBurn, func(ctx context.Context) error {
			return l.tokens.RevertBurn(ctx, journal.SourceAccount, journal.Amount)
		})
	}

	err := unit.abort(ctx, errors.New("disposal interrupted at "+string(journal.Status)+" after "+
		time.Since(journal.UpdatedAt).Round(time.Second).String()))
	return !utils.HasCode(err, utils.ErrCodeCompensation)
}
