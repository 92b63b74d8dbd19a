package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// TokenAccount is a balance of one mint held by one owner, as reported by
// the external token ledger
type TokenAccount struct {
	Address common.Address `json:"address"`
	Mint    common.Address `json:"mint"`
	Owner   common.Address `json:"owner"`
	Balance uint64         `json:"balance"`
}
