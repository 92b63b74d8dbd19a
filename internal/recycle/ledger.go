package recycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/reward"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/internal/tokens"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const defaultLockTimeout = 5 * time.Second

// EventSink receives the outbox notification of every committed disposal
type EventSink interface {
	Publish(notification *models.Notification)
}

// Options configures the recycling ledger
type Options struct {
	ProgramID     common.Address
	AuthoritySeed string

	// RewardMint and ReserveAccount pin the reward token and the reserve it is
	// paid from. Zero values accept whatever the request names.
	RewardMint     common.Address
	ReserveAccount common.Address

	LockTimeout time.Duration
}

// DisposeRequest names everything a disposal touches
type DisposeRequest struct {
	User              common.Address `json:"user"`
	Station           common.Address `json:"station"`
	SourceTokenType   common.Address `json:"source_token_type"`
	SourceAccount     common.Address `json:"source_account"`
	RewardTokenType   common.Address `json:"reward_token_type"`
	UserRewardAccount common.Address `json:"user_reward_account"`
	ReserveAccount    common.Address `json:"reserve_account"`
	Amount            uint64         `json:"amount"`
	Severity          uint8          `json:"severity"`
}

// Ledger orchestrates disposals: burn, reward transfer, station update,
// receipt and event as one all-or-nothing unit
type Ledger struct {
	store     storage.Storage
	tokens    tokens.Service
	registry  *Registry
	sink      EventSink
	metrics   *metrics.Manager
	authority tokens.Authority
	opts      Options
	locks     *lockTable
	logger    *logrus.Entry
	now       func() time.Time
}

// NewLedger creates a ledger. sink and metricsManager may be nil.
func NewLedger(store storage.Storage, tokenService tokens.Service, registry *Registry, sink EventSink,
	metricsManager *metrics.Manager, opts Options) *Ledger {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	return &Ledger{
		store:     store,
		tokens:    tokenService,
		registry:  registry,
		sink:      sink,
		metrics:   metricsManager,
		authority: tokens.NewProgramAuthority(opts.ProgramID, opts.AuthoritySeed),
		opts:      opts,
		locks:     newLockTable(),
		logger:    utils.ComponentLogger("ledger"),
		now:       time.Now,
	}
}

// Authority returns the program authority address that must own the reserve
func (l *Ledger) Authority() common.Address {
	return l.authority.Address()
}

// DisposeDeadCoin burns req.Amount of a dead token and pays the reward.
// Either every effect is applied or none is.
func (l *Ledger) DisposeDeadCoin(ctx context.Context, req DisposeRequest) (*models.RecycleRecord, error) {
	start := time.Now()
	if req.ReserveAccount == (common.Address{}) {
		req.ReserveAccount = l.opts.ReserveAccount
	}
	if req.RewardTokenType == (common.Address{}) {
		req.RewardTokenType = l.opts.RewardMint
	}

	record, err := l.dispose(ctx, req)

	status := "success"
	if err != nil {
		status = strings.ToLower(utils.ErrorCode(err))
		if status == "" {
			status = "error"
		}
	}
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().RecordDisposal(status, time.Since(start))
		if record != nil {
			l.metrics.GetPrometheusMetrics().RecordDisposalAmounts(record.Amount, record.Reward, record.ExperiencePoints)
		}
	}
	return record, err
}

func (l *Ledger) dispose(ctx context.Context, req DisposeRequest) (*models.RecycleRecord, error) {
	if req.Amount == 0 {
		return nil, utils.NewAppError(utils.ErrCodeInvalidAmount, "Amount must be greater than zero", "")
	}
	if req.Severity < reward.MinSeverity || req.Severity > reward.MaxSeverity {
		return nil, utils.NewAppError(utils.ErrCodeInvalidSeverity, "Severity must be between 1 and 100",
			fmt.Sprintf("severity: %d", req.Severity))
	}

	rewardAmount, xp, err := reward.Compute(req.Amount, req.Severity)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.opts.LockTimeout)
	release, err := l.locks.acquire(lockCtx, req.Station, req.SourceAccount, req.UserRewardAccount, req.ReserveAccount)
	cancel()
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConflict, "Timed out waiting for disposal resources", err)
	}
	defer release()

	station, err := l.registry.GetStation(ctx, req.Station)
	if err != nil {
		return nil, err
	}

	source, reserve, err := l.checkBindings(ctx, req)
	if err != nil {
		return nil, err
	}

	if source.Balance < req.Amount {
		return nil, utils.WrapAppError(utils.ErrCodeBurnFailed, "Insufficient balance to burn",
			fmt.Errorf("%w: balance %d, amount %d", tokens.ErrInsufficientFunds, source.Balance, req.Amount))
	}
	if reserve.Balance < rewardAmount {
		return nil, utils.WrapAppError(utils.ErrCodeTransferFailed, "Reserve cannot pay reward",
			fmt.Errorf("%w: reserve %d, reward %d", tokens.ErrInsufficientFunds, reserve.Balance, rewardAmount))
	}

	next, err := l.registry.recordDisposal(station)
	if err != nil {
		return nil, err
	}

	now := l.now()
	journal := &models.DisposalJournal{
		ID:             uuid.NewString(),
		User:           req.User,
		Station:        req.Station,
		SourceAccount:  req.SourceAccount,
		RewardAccount:  req.UserRewardAccount,
		ReserveAccount: req.ReserveAccount,
		Amount:         req.Amount,
		Reward:         rewardAmount,
		Status:         models.JournalPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.SaveJournal(ctx, journal); err != nil {
		return nil, err
	}

	logger := l.logger.WithFields(logrus.Fields{
		"journal_id": journal.ID,
		"station":    req.Station.Hex(),
		"user":       req.User.Hex(),
	})
	unit := &disposalUnit{ledger: l, journal: journal, logger: logger}

	revertBurn := func(ctx context.Context) error {
		return l.tokens.RevertBurn(ctx, req.SourceAccount, req.Amount)
	}
	if err := l.tokens.Burn(ctx, req.SourceAccount, req.User, req.Amount); err != nil {
		unit.afterFailedCall(l.settle(ctx, err, req.SourceAccount, source.Balance, req.Amount),
			tokens.OpBurn, req.SourceAccount, revertBurn)
		return nil, unit.abort(ctx, utils.WrapAppError(utils.ErrCodeBurnFailed, "Burn failed at token ledger", err))
	}
	unit.onAbort(tokens.OpRevertBurn, revertBurn)
	if err := unit.advance(ctx, models.JournalBurned); err != nil {
		return nil, unit.abort(ctx, err)
	}

	if rewardAmount > 0 {
		revertTransfer := func(ctx context.Context) error {
			return l.tokens.RevertTransfer(ctx, req.ReserveAccount, req.UserRewardAccount, rewardAmount)
		}
		if err := l.tokens.Transfer(ctx, req.ReserveAccount, req.UserRewardAccount, l.authority, rewardAmount); err != nil {
			unit.afterFailedCall(l.settle(ctx, err, req.ReserveAccount, reserve.Balance, rewardAmount),
				tokens.OpTransfer, req.ReserveAccount, revertTransfer)
			return nil, unit.abort(ctx, utils.WrapAppError(utils.ErrCodeTransferFailed, "Reward transfer failed at token ledger", err))
		}
		unit.onAbort(tokens.OpRevertTransfer, revertTransfer)
	}
	if err := unit.advance(ctx, models.JournalTransferred); err != nil {
		return nil, unit.abort(ctx, err)
	}

	record := &models.RecycleRecord{
		ID:               uuid.NewString(),
		User:             req.User,
		Station:          req.Station,
		TokenType:        req.SourceTokenType,
		Amount:           req.Amount,
		Severity:         req.Severity,
		Reward:           rewardAmount,
		ExperiencePoints: xp,
		Timestamp:        now.Unix(),
	}
	notification := &models.Notification{
		ID:        uuid.NewString(),
		Type:      models.NotificationTypeRecycle,
		RecordID:  record.ID,
		Payload:   models.NewRecycleEvent(record),
		Status:    models.NotificationPending,
		CreatedAt: now,
	}

	if err := l.store.CommitDisposal(ctx, next, station.RecycledCount, record, journal, notification); err != nil {
		return nil, unit.abort(ctx, err)
	}

	logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"amount":    record.Amount,
		"severity":  record.Severity,
		"reward":    record.Reward,
		"xp":        record.ExperiencePoints,
	}).Info("Disposal committed")

	if l.sink != nil {
		l.sink.Publish(notification)
	}
	return record, nil
}

// callOutcome is what the token ledger actually did with a Burn or Transfer
// that returned an error
type callOutcome int

const (
	callNotApplied callOutcome = iota
	callApplied
	callUnknown
)

// settle classifies a failed Burn or Transfer. Definite rejections had no
// effect. For anything else the debited account is read back: the disposal
// holds its lock, so its balance is either unchanged or short by exactly
// amount. Any other reading leaves the outcome unknown.
func (l *Ledger) settle(ctx context.Context, callErr error, debited common.Address, before, amount uint64) callOutcome {
	if tokens.IsRejected(callErr) {
		return callNotApplied
	}

	acc, err := l.tokens.Account(context.WithoutCancel(ctx), debited)
	switch {
	case err != nil:
		l.logger.WithError(err).WithField("account", debited.Hex()).Warn("Cannot read back account after failed call")
		return callUnknown
	case acc.Balance == before:
		return callNotApplied
	case before >= amount && acc.Balance == before-amount:
		l.logger.WithError(callErr).WithField("account", debited.Hex()).Warn("Token ledger applied a call it reported as failed")
		return callApplied
	default:
		return callUnknown
	}
}

// checkBindings verifies that every account belongs to who and what the
// request says it does
func (l *Ledger) checkBindings(ctx context.Context, req DisposeRequest) (source, reserve *models.TokenAccount, err error) {
	mismatch := func(msg string, args ...interface{}) error {
		return utils.NewAppError(utils.ErrCodeAccountMismatch, "Account binding mismatch", fmt.Sprintf(msg, args...))
	}

	if l.opts.RewardMint != (common.Address{}) && req.RewardTokenType != l.opts.RewardMint {
		return nil, nil, mismatch("reward token %s is not the program reward mint", req.RewardTokenType.Hex())
	}
	if l.opts.ReserveAccount != (common.Address{}) && req.ReserveAccount != l.opts.ReserveAccount {
		return nil, nil, mismatch("reserve %s is not the program reserve", req.ReserveAccount.Hex())
	}
	if req.SourceAccount == req.UserRewardAccount || req.SourceAccount == req.ReserveAccount ||
		req.UserRewardAccount == req.ReserveAccount {
		return nil, nil, mismatch("source, reward and reserve accounts must be distinct")
	}

	load := func(role string, addr common.Address) (*models.TokenAccount, error) {
		acc, err := l.tokens.Account(ctx, addr)
		if err != nil {
			if errors.Is(err, tokens.ErrAccountNotFound) {
				return nil, mismatch("%s account %s does not exist", role, addr.Hex())
			}
			return nil, utils.WrapAppError(utils.ErrCodeExternal, "Failed to load "+role+" account", err)
		}
		return acc, nil
	}

	if source, err = load("source", req.SourceAccount); err != nil {
		return nil, nil, err
	}
	if source.Mint != req.SourceTokenType || source.Owner != req.User {
		return nil, nil, mismatch("source account %s is not a %s account of %s",
			req.SourceAccount.Hex(), req.SourceTokenType.Hex(), req.User.Hex())
	}

	userReward, err := load("reward", req.UserRewardAccount)
	if err != nil {
		return nil, nil, err
	}
	if userReward.Mint != req.RewardTokenType || userReward.Owner != req.User {
		return nil, nil, mismatch("reward account %s is not a %s account of %s",
			req.UserRewardAccount.Hex(), req.RewardTokenType.Hex(), req.User.Hex())
	}

	if reserve, err = load("reserve", req.ReserveAccount); err != nil {
		return nil, nil, err
	}
	if reserve.Mint != req.RewardTokenType || reserve.Owner != l.authority.Address() {
		return nil, nil, mismatch("reserve %s is not held by the program authority", req.ReserveAccount.Hex())
	}

	return source, reserve, nil
}

// ClaimXP is reserved for a future experience redemption flow and changes
// nothing
func (l *Ledger) ClaimXP(ctx context.Context, user common.Address) error {
	l.logger.WithField("user", user.Hex()).Info("ClaimXP called; experience redemption is not available")
	return nil
}
