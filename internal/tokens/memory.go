package tokens

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/models"
)

// MemoryLedger is an in-process token ledger used in development mode and tests
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[common.Address]*models.TokenAccount
	supply   map[common.Address]uint64
	failures map[string][]error
	calls    map[string]int
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[common.Address]*models.TokenAccount),
		supply:   make(map[common.Address]uint64),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// SetAccount creates or replaces an account, adjusting the mint supply
func (m *MemoryLedger) SetAccount(account models.TokenAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.accounts[account.Address]; ok {
		m.supply[prev.Mint] -= prev.Balance
	}
	acc := account
	m.accounts[account.Address] = &acc
	m.supply[account.Mint] += account.Balance
}

// Supply returns the circulating amount of a mint
func (m *MemoryLedger) Supply(mint common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[mint]
}

// Balance returns an account balance, zero if the account is unknown
func (m *MemoryLedger) Balance(address common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[address]; ok {
		return acc.Balance
	}
	return 0
}

// FailNext makes the next call of op return err without any effect.
// Repeated calls queue further failures.
func (m *MemoryLedger) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns how many times op was invoked, including injected failures
func (m *MemoryLedger) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter records the call and pops an injected failure; m.mu must be held
func (m *MemoryLedger) enter(op string) error {
	m.calls[op]++
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[op] = queue[1:]
	return err
}

func (m *MemoryLedger) lookup(address common.Address) (*models.TokenAccount, error) {
	acc, ok := m.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address.Hex())
	}
	return acc, nil
}

func (m *MemoryLedger) Account(ctx context.Context, address common.Address) (*models.TokenAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.lookup(address)
	if err != nil {
		return nil, err
	}
	view := *acc
	return &view, nil
}

func (m *MemoryLedger) Burn(ctx context.Context, account, owner common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpBurn); err != nil {
		return err
	}
	acc, err := m.lookup(account)
	if err != nil {
		return err
	}
	if acc.Owner != owner {
		return ErrOwnerMismatch
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: balance %d, burn %d", ErrInsufficientFunds, acc.Balance, amount)
	}
	acc.Balance -= amount
	m.supply[acc.Mint] -= amount
	return nil
}

func (m *MemoryLedger) Transfer(ctx context.Context, from, to common.Address, authority Authority, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpTransfer); err != nil {
		return err
	}
	src, err := m.lookup(from)
	if err != nil {
		return err
	}
	dst, err := m.lookup(to)
	if err != nil {
		return err
	}
	if src.Owner != authority.Address() {
		return ErrAuthorityMismatch
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Balance < amount {
		return fmt.Errorf("%w: balance %d, transfer %d", ErrInsufficientFunds, src.Balance, amount)
	}
	credited, err := credit(dst.Balance, amount)
	if err != nil {
		return err
	}
	src.Balance -= amount
	dst.Balance = credited
	return nil
}

func (m *MemoryLedger) RevertBurn(ctx context.Context, account common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpRevertBurn); err != nil {
		return err
	}
	acc, err := m.lookup(account)
	if err != nil {
		return err
	}
	balance, err := credit(acc.Balance, amount)
	if err != nil {
		return err
	}
	supply, err := credit(m.supply[acc.Mint], amount)
	if err != nil {
		return err
	}
	acc.Balance = balance
	m.supply[acc.Mint] = supply
	return nil
}

func (m *MemoryLedger) RevertTransfer(ctx context.Context, from, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(OpRevertTransfer); err != nil {
		return err
	}
	src, err := m.lookup(from)
	if err != nil {
		return err
	}
	dst, err := m.lookup(to)
	if err != nil {
		return err
	}
	if dst.Balance < amount {
		return fmt.Errorf("%w: cannot reclaim %d from %s", ErrInsufficientFunds, amount, to.Hex())
	}
	credited, err := credit(src.Balance, amount)
	if err != nil {
		return err
	}
	dst.Balance -= amount
	src.Balance = credited
	return nil
}

// credit adds amount to balance, failing instead of wrapping
func credit(balance, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrBalanceOverflow, balance, amount)
	}
	return sum, nil
}
