// Package units converts between whole-unit decimal strings ("1.5") and
// base-unit amounts (wei-like integers).
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/pawnshop/internal/pawn"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Converter scales by 10^Decimals.
type Converter struct {
	Decimals int32
}

// New returns a converter for the given number of decimals.
func New(decimals int) Converter {
	return Converter{Decimals: int32(decimals)}
}

// ToBase parses a non-negative whole-unit amount. More fractional digits than
// Decimals is an error rather than a silent truncation.
func (c Converter) ToBase(s string) (pawn.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pawn.Amount{}, errorbank.InvalidInput("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return pawn.Amount{}, errorbank.InvalidInput(fmt.Sprintf("invalid amount %q", s), errorbank.WithCause(err))
	}
	if d.IsNegative() {
		return pawn.Amount{}, errorbank.InvalidInput("amount must not be negative")
	}
	scaled := d.Shift(c.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return pawn.Amount{}, errorbank.InvalidInput(fmt.Sprintf("amount %q has more than %d decimals", s, c.Decimals))
	}
	return pawn.AmountFromBig(scaled.BigInt())
}

// FromBase renders a base-unit amount as a whole-unit decimal string.
func (c Converter) FromBase(a pawn.Amount) string {
	return decimal.NewFromBigInt(a.Big(), -c.Decimals).String()
}

// Float approximates a base-unit amount in whole units, for gauges.
func (c Converter) Float(a pawn.Amount) float64 {
	f, _ := decimal.NewFromBigInt(a.Big(), -c.Decimals).Float64()
	return f
}
