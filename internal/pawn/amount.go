package pawn

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Amount is a non-negative quantity in the smallest currency unit.
// The zero value is zero. Amounts are immutable; every operation allocates.
type Amount struct {
	v *big.Int
}

// NewAmount returns n as an Amount.
func NewAmount(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// AmountFromBig copies b into an Amount. Negative values are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, errorbank.InvalidInput("amount must not be negative")
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount reads a base-10 integer amount.
func ParseAmount(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Amount{}, errorbank.InvalidInput(fmt.Sprintf("invalid amount %q", s))
	}
	return AmountFromBig(b)
}

func (a Amount) bigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(a.bigInt())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bigInt(), b.bigInt())}
}

// Sub returns a-b and false when the result would be negative.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.Cmp(b) < 0 {
		return Amount{}, false
	}
	return Amount{v: new(big.Int).Sub(a.bigInt(), b.bigInt())}, true
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func (a Amount) SaturatingSub(b Amount) Amount {
	diff, ok := a.Sub(b)
	if !ok {
		return Amount{}
	}
	return diff
}

func (a Amount) Mul(n uint64) Amount {
	return Amount{v: new(big.Int).Mul(a.bigInt(), new(big.Int).SetUint64(n))}
}

// Div is floor division. Dividing by zero yields zero.
func (a Amount) Div(n uint64) Amount {
	if n == 0 {
		return Amount{}
	}
	return Amount{v: new(big.Int).Quo(a.bigInt(), new(big.Int).SetUint64(n))}
}

func (a Amount) Cmp(b Amount) int {
	return a.bigInt().Cmp(b.bigInt())
}

func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

func (a Amount) IsZero() bool {
	return a.v == nil || a.v.Sign() == 0
}

func (a Amount) String() string {
	return a.bigInt().String()
}

// MinAmount returns the smaller of a and b.
func MinAmount(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MarshalJSON renders the amount as a decimal string so no precision is lost in transit.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the amount as its decimal text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads NUMERIC/DECIMAL columns in any textual or integer form.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("scan amount: negative value %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	case string:
		return a.scanText(v)
	case []byte:
		return a.scanText(string(v))
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
}

func (a *Amount) scanText(s string) error {
	// NUMERIC columns may come back with a fractional zero part.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return fmt.Errorf("scan amount: fractional value %q", s)
		}
		s = s[:i]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	*a = parsed
	return nil
}
