package recycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/token-recycle/internal/config"
	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/internal/tokens"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

var (
	programID  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	deadMint   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	rewardMint = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	reserveAcc = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	stationID  = common.HexToAddress("0x0000000000000000000000000000000000005001")
	owner      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	fixedNow   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type captureSink struct {
	mu     sync.Mutex
	events []*models.Notification
}

func (c *captureSink) Publish(n *models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, n)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type user struct {
	addr   common.Address
	source common.Address
	reward common.Address
}

type fixture struct {
	ctx      context.Context
	store    storage.Storage
	tokens   *tokens.MemoryLedger
	metrics  *metrics.Manager
	registry *Registry
	ledger   *Ledger
	sink     *captureSink
	station  *models.Station
	alice    user
}

func openStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "recycle.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, utils.InitLogger("error", "text", "discard", ""))
	f := &fixture{
		ctx:     context.Background(),
		store:   openStore(t),
		tokens:  tokens.NewMemoryLedger(),
		metrics: metrics.NewManager(),
		sink:    &captureSink{},
	}
	f.registry = NewRegistry(f.store, f.metrics)
	f.registry.now = func() time.Time { return fixedNow }

	f.ledger = NewLedger(f.store, f.tokens, f.registry, f.sink, f.metrics, Options{
		ProgramID:      programID,
		AuthoritySeed:  tokens.DefaultAuthoritySeed,
		RewardMint:     rewardMint,
		ReserveAccount: reserveAcc,
		LockTimeout:    2 * time.Second,
	})
	f.ledger.now = func() time.Time { return fixedNow }

	f.tokens.SetAccount(models.TokenAccount{
		Address: reserveAcc, Mint: rewardMint, Owner: f.ledger.Authority(), Balance: 1_000,
	})
	f.alice = f.newUser(t, 1, 50_000_000)

	station, err := f.registry.CreateStation(f.ctx, StationParams{
		ID:          &stationID,
		Owner:       owner,
		Name:        "Central Depot",
		Description: "Dead coins welcome",
		Latitude:    40.7128,
		Longitude:   -74.0060,
	})
	require.NoError(t, err)
	f.station = station
	return f
}

// newUser creates a user holding balance of the dead token and an empty
// reward account
func (f *fixture) newUser(t *testing.T, n byte, balance uint64) user {
	t.Helper()
	u := user{
		addr:   common.BytesToAddress([]byte{0xa0, n}),
		source: common.BytesToAddress([]byte{0xb0, n}),
		reward: common.BytesToAddress([]byte{0xc0, n}),
	}
	f.tokens.SetAccount(models.TokenAccount{Address: u.source, Mint: deadMint, Owner: u.addr, Balance: balance})
	f.tokens.SetAccount(models.TokenAccount{Address: u.reward, Mint: rewardMint, Owner: u.addr})
	return u
}

func (f *fixture) request(u user, amount uint64, severity uint8) DisposeRequest {
	return DisposeRequest{
		User:              u.addr,
		Station:           f.station.ID,
		SourceTokenType:   deadMint,
		SourceAccount:     u.source,
		RewardTokenType:   rewardMint,
		UserRewardAccount: u.reward,
		ReserveAccount:    reserveAcc,
		Amount:            amount,
		Severity:          severity,
	}
}

func (f *fixture) stationCount(t *testing.T) uint64 {
	t.Helper()
	station, err := f.store.GetStation(f.ctx, f.station.ID)
	require.NoError(t, err)
	return station.RecycledCount
}

func (f *fixture) records(t *testing.T) []*models.RecycleRecord {
	t.Helper()
	records, err := f.store.GetRecords(f.ctx, models.RecordFilter{Station: &f.station.ID})
	require.NoError(t, err)
	return records
}

func (f *fixture) journals(t *testing.T, status models.JournalStatus) []*models.DisposalJournal {
	t.Helper()
	journals, err := f.store.GetJournals(f.ctx, &status, 0)
	require.NoError(t, err)
	return journals
}

// failingCommit makes the commit point fail after burn and transfer succeeded
type failingCommit struct {
	storage.Storage
	err error
}

func (s *failingCommit) CommitDisposal(ctx context.Context, station *models.Station, expectedCount uint64,
	record *models.RecycleRecord, journal *models.DisposalJournal, notification *models.Notification) error {
	return s.err
}

// lostReply applies a call on the memory ledger and then reports err, the way
// a remote ledger looks when it commits but the response never arrives
type lostReply struct {
	*tokens.MemoryLedger
	op  string
	err error

	// blindReads makes Account fail once the reply was lost
	blindReads bool
	lost       bool
}

func (s *lostReply) Account(ctx context.Context, address common.Address) (*models.TokenAccount, error) {
	if s.lost && s.blindReads {
		return nil, errors.New("token ledger unreachable")
	}
	return s.MemoryLedger.Account(ctx, address)
}

func (s *lostReply) Burn(ctx context.Context, account, owner common.Address, amount uint64) error {
	if err := s.MemoryLedger.Burn(ctx, account, owner, amount); err != nil {
		return err
	}
	return s.loseReply(tokens.OpBurn)
}

func (s *lostReply) Transfer(ctx context.Context, from, to common.Address, authority tokens.Authority, amount uint64) error {
	if err := s.MemoryLedger.Transfer(ctx, from, to, authority, amount); err != nil {
		return err
	}
	return s.loseReply(tokens.OpTransfer)
}

func (s *lostReply) loseReply(op string) error {
	if op != s.op {
		return nil
	}
	s.lost = true
	return s.err
}
