package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account that can own or rent the lock.
// Addresses are stored lower-cased so they compare with ==.
type Address string

// ZeroAddress means "nobody": no renter, or no owner after renouncement.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// addressHexLen is the number of hex digits after the 0x prefix.
const addressHexLen = 40

// ParseAddress validates and normalizes a 0x-prefixed 20 byte hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != addressHexLen+2 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", fmt.Errorf("invalid address %q: expected 0x followed by %d hex digits", s, addressHexLen)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// NewAddress generates a random non-zero address.
func NewAddress() (Address, error) {
	buf := make([]byte, addressHexLen/2)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating address: %w", err)
		}
		a := Address("0x" + hex.EncodeToString(buf))
		if !a.IsZero() {
			return a, nil
		}
	}
}

// IsZero reports whether a is the zero address or unset.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// OrZero returns ZeroAddress for an unset address.
func (a Address) OrZero() Address {
	if a.IsZero() {
		return ZeroAddress
	}
	return a
}

func (a Address) String() string {
	return string(a.OrZero())
}
