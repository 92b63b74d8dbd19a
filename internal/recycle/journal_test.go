package recycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/tokens"
)

// openJournal simulates a disposal whose process died after status was
// persisted, with the token ledger effects applied to match
func (f *fixture) openJournal(t *testing.T, status models.JournalStatus, amount, reward uint64) *models.DisposalJournal {
	t.Helper()
	ctx := f.ctx
	if status == models.JournalBurned || status == models.JournalTransferred {
		require.NoError(t, f.tokens.Burn(ctx, f.alice.source, f.alice.addr, amount))
	}
	if status == models.JournalTransferred && reward > 0 {
		require.NoError(t, f.tokens.Transfer(ctx, reserveAcc, f.alice.reward, f.ledger.authority, reward))
	}

	journal := &models.DisposalJournal{
		ID:             string(status) + "-journal",
		User:           f.alice.addr,
		Station:        f.station.ID,
		SourceAccount:  f.alice.source,
		RewardAccount:  f.alice.reward,
		ReserveAccount: reserveAcc,
		Amount:         amount,
		Reward:         reward,
		Status:         status,
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
	}
	require.NoError(t, f.store.SaveJournal(ctx, journal))
	return journal
}

func TestRecoverOpenJournalsRevertsTransferredDisposal(t *testing.T) {
	f := newFixture(t)
	f.openJournal(t, models.JournalTransferred, 5_000_000, 10)
	require.Equal(t, uint64(10), f.tokens.Balance(f.alice.reward))

	report, err := f.ledger.RecoverOpenJournals(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, &RecoveryReport{Examined: 1, RolledBack: 1}, report)

	assert.Equal(t, uint64(50_000_000), f.tokens.Balance(f.alice.source))
	assert.Equal(t, uint64(0), f.tokens.Balance(f.alice.reward))
	assert.Equal(t, uint64(1_000), f.tokens.Balance(reserveAcc))
	assert.Len(t, f.journals(t, models.JournalRolledBack), 1)
}

func TestRecoverOpenJournalsZeroRewardBurn(t *testing.T) {
	f := newFixture(t)
	f.openJournal(t, models.JournalBurned, 500_000, 0)

	report, err := f.ledger.RecoverOpenJournals(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolledBack)
	assert.Equal(t, uint64(50_000_000), f.tokens.Balance(f.alice.source))
}

func TestRecoverOpenJournalsFlagsUncertainState(t *testing.T) {
	f := newFixture(t)
	f.openJournal(t, models.JournalPending, 5_000_000, 10)
	f.openJournal(t, models.JournalBurned, 5_000_000, 10)

	report, err := f.ledger.RecoverOpenJournals(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, &RecoveryReport{Examined: 2, Failed: 2}, report)

	// nothing is reverted when the ledger state is unknown
	assert.Equal(t, 0, f.tokens.Calls(tokens.OpRevertBurn))
	assert.Len(t, f.journals(t, models.JournalCompensationFailed), 2)

	logs, err := f.store.GetLogsByType(f.ctx, LogTypeCompensationFailed, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRecoverOpenJournalsReportsFailedRevert(t *testing.T) {
	f := newFixture(t)
	f.openJournal(t, models.JournalTransferred, 5_000_000, 10)
	f.tokens.FailNext(tokens.OpRevertBurn, errors.New("ledger offline"))

	report, err := f.ledger.RecoverOpenJournals(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	// the transfer was still undone
	assert.Equal(t, uint64(1_000), f.tokens.Balance(reserveAcc))
	assert.Len(t, f.journals(t, models.JournalCompensationFailed), 1)
}

func TestRecoverOpenJournalsIgnoresFinishedDisposals(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.DisposeDeadCoin(f.ctx, f.request(f.alice, 5_000_000, 100))
	require.NoError(t, err)

	report, err := f.ledger.RecoverOpenJournals(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Examined)
	assert.Equal(t, uint64(45_000_000), f.tokens.Balance(f.alice.source))
}
