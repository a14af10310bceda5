package ir

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned for negative, malformed or out-of-range amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// maxUint256 is 2^256 - 1, the largest amount a ledger event can carry.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Amount is a non-negative integer in base units (e.g. wei).
//
// The zero value is 0. Amount is immutable: arithmetic returns a new value
// and never aliases the receiver's big.Int.
type Amount struct {
	v *big.Int
}

// NewAmount creates an Amount from a uint64.
func NewAmount(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// ParseAmount parses a base-10 amount in the uint256 range.
// Use it at the event boundary; accumulated totals may exceed uint256 and are
// decoded without the bound.
func ParseAmount(s string) (Amount, error) {
	a, err := parseAmount(s)
	if err != nil {
		return Amount{}, err
	}
	if a.v.Cmp(maxUint256) > 0 {
		return Amount{}, fmt.Errorf("%w: %q exceeds uint256", ErrInvalidAmount, s)
	}
	return a, nil
}

func parseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}
	return Amount{v: v}, nil
}

// MustAmount is like ParseAmount but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// Sign returns 0 for zero and +1 for positive amounts.
func (a Amount) Sign() int {
	return a.big().Sign()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

// Equal reports whether a and b are the same amount.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// String returns the decimal representation.
func (a Amount) String() string {
	return a.big().String()
}

// MarshalJSON encodes the amount as a decimal string so values above 2^53
// survive JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer in the
// uint256 range. JSON is only read from event payloads.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as decimal TEXT.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(val any) error {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		s = fmt.Sprintf("%d", v)
	default:
		return fmt.Errorf("amount: unexpected type %T", val)
	}
	parsed, err := parseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
