package tokens

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/models"
)

// Operation names used for logging, metrics and failure injection
const (
	OpBurn           = "burn"
	OpTransfer       = "transfer"
	OpRevertBurn     = "revert_burn"
	OpRevertTransfer = "revert_transfer"
)

var (
	ErrAccountNotFound   = errors.New("token account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOwnerMismatch     = errors.New("account owner does not match signer")
	ErrMintMismatch      = errors.New("accounts hold different mints")
	ErrAuthorityMismatch = errors.New("authority is not the account owner")
	ErrBalanceOverflow   = errors.New("balance would overflow")

	// ErrRejected marks a request the token ledger refused without applying it
	ErrRejected = errors.New("request rejected by token ledger")
)

// IsRejected reports whether err is a definite refusal. Any other error from
// Burn or Transfer (timeouts, cancellation, 5xx) leaves the outcome unknown.
func IsRejected(err error) bool {
	for _, target := range []error{
		ErrRejected, ErrAccountNotFound, ErrInsufficientFunds,
		ErrOwnerMismatch, ErrMintMismatch, ErrAuthorityMismatch, ErrBalanceOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Service is the external token ledger the recycling ledger burns from and
// pays rewards through. Burn and Transfer are not idempotent.
type Service interface {
	Account(ctx context.Context, address common.Address) (*models.TokenAccount, error)
	Burn(ctx context.Context, account, owner common.Address, amount uint64) error
	Transfer(ctx context.Context, from, to common.Address, authority Authority, amount uint64) error

	// Compensations for a previously successful Burn or Transfer
	RevertBurn(ctx context.Context, account common.Address, amount uint64) error
	RevertTransfer(ctx context.Context, from, to common.Address, amount uint64) error
}
