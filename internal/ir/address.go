package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a 20-byte account or contract address in 0x-prefixed hex.
// Always lower case once parsed, so it can be used directly as a map key.
type Address string

// ParseAddress validates and normalizes a hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for _, c := range s[2:] {
		if !isHexDigit(c) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustAddress is like ParseAddress but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the address as a string.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// MilestoneKey is the composite identity of a milestone.
type MilestoneKey struct {
	Project Address `json:"project"`
	Index   uint32  `json:"index"`
}

// String renders the key as "<project>#<index>".
func (k MilestoneKey) String() string {
	return fmt.Sprintf("%s#%d", k.Project, k.Index)
}
