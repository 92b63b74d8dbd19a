package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// RecycleEvent is the notification emitted after a disposal commits.
// It is a hint; consumers re-read the record by RecordID.
type RecycleEvent struct {
	RecordID         string         `json:"record_id"`
	User             common.Address `json:"user"`
	Station          common.Address `json:"station"`
	TokenType        common.Address `json:"token_type"`
	Amount           uint64         `json:"amount"`
	Reward           uint64         `json:"reward"`
	ExperiencePoints uint64         `json:"experience_points"`
	Timestamp        int64          `json:"timestamp"`
}

// NewRecycleEvent mirrors a record into an event
func NewRecycleEvent(record *RecycleRecord) *RecycleEvent {
	return &RecycleEvent{
		RecordID:         record.ID,
		User:             record.User,
		Station:          record.Station,
		TokenType:        record.TokenType,
		Amount:           record.Amount,
		Reward:           record.Reward,
		ExperiencePoints: record.ExperiencePoints,
		Timestamp:        record.Timestamp,
	}
}

// Data flattens the event for templated notification channels
func (e *RecycleEvent) Data() map[string]interface{} {
	return map[string]interface{}{
		"record_id":         e.RecordID,
		"user":              e.User.Hex(),
		"station":           e.Station.Hex(),
		"token_type":        e.TokenType.Hex(),
		"amount":            e.Amount,
		"reward":            e.Reward,
		"experience_points": e.ExperiencePoints,
		"timestamp":         e.Timestamp,
	}
}
