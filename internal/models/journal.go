package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// JournalStatus tracks how far a disposal progressed
type JournalStatus string

const (
	JournalPending            JournalStatus = "pending"
	JournalBurned             JournalStatus = "burned"
	JournalTransferred        JournalStatus = "transferred"
	JournalCommitted          JournalStatus = "committed"
	JournalRolledBack         JournalStatus = "rolled_back"
	JournalCompensationFailed JournalStatus = "compensation_failed"
)

// Terminal reports whether no further transition is expected
func (s JournalStatus) Terminal() bool {
	switch s {
	case JournalCommitted, JournalRolledBack, JournalCompensationFailed:
		return true
	}
	return false
}

// DisposalJournal is the compensating-action log entry of one disposal
type DisposalJournal struct {
	ID             string         `json:"id" db:"id"`
	User           common.Address `json:"user" db:"user_address"`
	Station        common.Address `json:"station" db:"station_id"`
	SourceAccount  common.Address `json:"source_account" db:"source_account"`
	RewardAccount  common.Address `json:"reward_account" db:"reward_account"`
	ReserveAccount common.Address `json:"reserve_account" db:"reserve_account"`
	Amount         uint64         `json:"amount" db:"amount"`
	Reward         uint64         `json:"reward" db:"reward"`
	Status         JournalStatus  `json:"status" db:"status"`
	Error          *string        `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}
