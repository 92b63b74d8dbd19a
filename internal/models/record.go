package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RecycleRecord is the immutable receipt of one disposal
type RecycleRecord struct {
	ID               string         `json:"id" db:"id"`
	User             common.Address `json:"user" db:"user_address"`
	Station          common.Address `json:"station" db:"station_id"`
	TokenType        common.Address `json:"token_type" db:"token_type"`
	Amount           uint64         `json:"amount" db:"amount"`
	Severity         uint8          `json:"severity" db:"severity"`
	Reward           uint64         `json:"reward" db:"reward"`
	ExperiencePoints uint64         `json:"experience_points" db:"experience_points"`
	Timestamp        int64          `json:"timestamp" db:"timestamp"`
}

// RecordFilter for querying recycle records
type RecordFilter struct {
	User    *common.Address `json:"user,omitempty"`
	Station *common.Address `json:"station,omitempty"`
	Since   *int64          `json:"since,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// UserSummary aggregates a user's disposals
type UserSummary struct {
	User             common.Address `json:"user"`
	Disposals        uint64         `json:"disposals"`
	TotalBurned      *big.Int       `json:"total_burned"`
	TotalReward      uint64         `json:"total_reward"`
	ExperiencePoints uint64         `json:"experience_points"`
	LastDisposalAt   *int64         `json:"last_disposal_at,omitempty"`
}
