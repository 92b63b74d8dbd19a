package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IsValidAddress checks if a string is a valid hex address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// ParseAddress validates and converts a hex string into an address.
// The zero address is rejected.
func ParseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, NewAppError(ErrCodeValidation, "Invalid address", field+": "+value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, NewAppError(ErrCodeValidation, "Zero address not allowed", field)
	}
	return addr, nil
}

// AddressKey is the canonical storage form of an address
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// DeriveAddress deterministically derives an address from a base address and
// seeds. The derived address has no private key.
func DeriveAddress(base common.Address, seeds ...[]byte) common.Address {
	parts := make([][]byte, 0, len(seeds)+1)
	parts = append(parts, base.Bytes())
	parts = append(parts, seeds...)
	hash := crypto.Keccak256(parts...)
	return common.BytesToAddress(hash[12:])
}

// NewRandomAddress creates a fresh address from a throwaway key pair
func NewRandomAddress() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
