package domain

import (
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ErrInvalidAddress is returned for strings that cannot be a Solana address.
var ErrInvalidAddress = errors.New("invalid wallet address")

// ValidateAddress checks that the string is a plausible Solana address:
// base58-decodable and 32 to 44 characters long.
func ValidateAddress(address string) error {
	if len(address) < 32 || len(address) > 44 {
		return ErrInvalidAddress
	}
	if _, err := base58.Decode(address); err != nil {
		return ErrInvalidAddress
	}
	return nil
}
