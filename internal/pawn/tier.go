package pawn

import (
	"fmt"
	"strings"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Grade is a loan tier fixing interest rate and duration.
type Grade string

const (
	GradeSilver   Grade = "SILVER"
	GradeGold     Grade = "GOLD"
	GradePlatinum Grade = "PLATINUM"
)

const week = 7 * 24 * 60 * 60

// Tier holds the loan terms for one grade.
type Tier struct {
	InterestPercent uint64
	LoanLength      uint64 // seconds
}

var tiers = map[Grade]Tier{
	GradeSilver:   {InterestPercent: 15, LoanLength: week},
	GradeGold:     {InterestPercent: 25, LoanLength: 2 * week},
	GradePlatinum: {InterestPercent: 35, LoanLength: 3 * week},
}

// LookupTier returns the terms for g.
func LookupTier(g Grade) (Tier, error) {
	t, ok := tiers[g]
	if !ok {
		return Tier{}, errorbank.InvalidInput(fmt.Sprintf("unknown grade %q", string(g)))
	}
	return t, nil
}

// ParseGrade normalises user input into a known Grade.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := LookupTier(g); err != nil {
		return "", err
	}
	return g, nil
}
