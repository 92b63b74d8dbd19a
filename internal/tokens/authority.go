package tokens

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// DefaultAuthoritySeed is the seed the program authority is derived from
const DefaultAuthoritySeed = "program-authority"

// Authority is the signing capability of the recycling program over the
// reward reserve. It can only be obtained from NewProgramAuthority.
type Authority struct {
	address common.Address
}

// NewProgramAuthority derives the program authority from the program id and seed
func NewProgramAuthority(programID common.Address, seed string) Authority {
	if seed == "" {
		seed = DefaultAuthoritySeed
	}
	return Authority{address: utils.DeriveAddress(programID, []byte(seed))}
}

// Address returns the derived authority address
func (a Authority) Address() common.Address {
	return a.address
}

// IsZero reports whether a was never derived
func (a Authority) IsZero() bool {
	return a.address == (common.Address{})
}
