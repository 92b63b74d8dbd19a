// Package reward maps a disposal (amount, severity) to the reward token
// amount and experience points it earns. Pure functions, no I/O.
package reward

import (
	"fmt"
	"math/bits"

	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const (
	// UnitsPerReward is how many disposed base units earn one reward token.
	UnitsPerReward uint64 = 1_000_000

	// SeverityFloor is both the floor applied to severity and the divisor
	// of the multiplier.
	SeverityFloor uint64 = 50

	// XPPerReward is the experience earned per reward token.
	XPPerReward uint64 = 10

	MinSeverity uint8 = 1
	MaxSeverity uint8 = 100
)

// Multiplier returns max(severity, 50) / 50 using integer division:
// 1 for severity 1..99 and 2 at exactly 100.
func Multiplier(severity uint8) uint64 {
	s := uint64(severity)
	if s < SeverityFloor {
		s = SeverityFloor
	}
	return s / SeverityFloor
}

// NomReward returns the reward for disposing amount at the given severity.
// Amounts under one million yield zero.
func NomReward(amount uint64, severity uint8) (uint64, error) {
	base := amount / UnitsPerReward
	return checkedMul(base, Multiplier(severity), "reward")
}

// ExperiencePoints returns ten times the reward.
func ExperiencePoints(amount uint64, severity uint8) (uint64, error) {
	r, err := NomReward(amount, severity)
	if err != nil {
		return 0, err
	}
	return checkedMul(r, XPPerReward, "experience points")
}

// Compute returns both reward and experience points for a disposal.
func Compute(amount uint64, severity uint8) (reward, xp uint64, err error) {
	if reward, err = NomReward(amount, severity); err != nil {
		return 0, 0, err
	}
	if xp, err = checkedMul(reward, XPPerReward, "experience points"); err != nil {
		return 0, 0, err
	}
	return reward, xp, nil
}

func checkedMul(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, utils.NewAppError(utils.ErrCodeOverflow,
			"Arithmetic overflow computing "+what,
			fmt.Sprintf("%d * %d", a, b))
	}
	return lo, nil
}
