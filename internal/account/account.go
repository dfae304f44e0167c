// Package account normalizes caller identifiers. Identity is established
// upstream; this package only makes equal accounts compare equal.
package account

import (
	"errors"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/settlement-engine/internal/model"
)

// MaxLength bounds opaque identifiers.
const MaxLength = 128

var (
	ErrEmpty   = errors.New("account: identifier is empty")
	ErrTooLong = errors.New("account: identifier too long")
	ErrInvalid = errors.New("account: identifier contains whitespace or control characters")
)

// Normalize returns the canonical form of raw. EVM hex addresses (with 0x
// prefix) are rewritten in EIP-55 checksum form so that differently-cased
// spellings of one address are one account; anything else is kept as-is
// after trimming.
func Normalize(raw string) (model.AccountID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	if len(s) > MaxLength {
		return "", ErrTooLong
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalid
		}
	}
	if IsAddress(s) {
		return model.AccountID(common.HexToAddress(s).Hex()), nil
	}
	return model.AccountID(s), nil
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "0x") && common.IsHexAddress(s)
}
