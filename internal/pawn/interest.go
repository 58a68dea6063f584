package pawn

import "time"

// RequiredRepayment is price plus interest accrued since the loan clock started.
// Each step floors, and accrual is not capped at the loan length.
func RequiredRepayment(e Escrow, now time.Time) Amount {
	if e.StartDate == 0 || e.LoanLength == 0 {
		return e.Price
	}
	elapsed := now.Unix() - e.StartDate
	if elapsed < 0 {
		elapsed = 0
	}
	interest := e.Price.Mul(e.InterestPercent).Div(100).Mul(uint64(elapsed)).Div(e.LoanLength)
	return e.Price.Add(interest)
}
