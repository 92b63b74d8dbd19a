package tokens

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/config"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// NewService builds the token ledger backend selected by configuration
func NewService(cfg *config.TokensConfig) (Service, error) {
	switch cfg.Backend {
	case "", "memory":
		ledger := NewMemoryLedger()
		for _, seed := range cfg.Accounts {
			ledger.SetAccount(models.TokenAccount{
				Address: common.HexToAddress(seed.Address),
				Mint:    common.HexToAddress(seed.Mint),
				Owner:   common.HexToAddress(seed.Owner),
				Balance: seed.Balance,
			})
		}
		return ledger, nil
	case "remote":
		if cfg.Endpoint == "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Token ledger endpoint is required", "")
		}
		return NewRemoteLedger(cfg.Endpoint, cfg.RequestTimeout), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported token backend", fmt.Sprintf("backend: %s", cfg.Backend))
	}
}
