package pawn

import (
	"fmt"
	"time"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Party names a side of a fund movement.
type Party string

const (
	PartyPool   Party = "pool"
	PartyEscrow Party = "escrow"
	PartyPawner Party = "pawner"
	PartyOwner  Party = "owner"
)

// MovementKind classifies a ledger entry.
type MovementKind string

const (
	MovementFundOwnerStake MovementKind = "fund_owner_stake"
	MovementDeposit        MovementKind = "deposit"
	MovementRelease        MovementKind = "release"
	MovementDrain          MovementKind = "drain"
	MovementPoolFund       MovementKind = "pool_fund"
	MovementPoolWithdraw   MovementKind = "pool_withdraw"
)

// Movement is one journal line. Every balance change produces exactly one.
// TransferID is set on deposits made by an identified external transfer.
type Movement struct {
	OrderID    uint64       `json:"order_id,omitempty"`
	Kind       MovementKind `json:"kind"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Amount     Amount       `json:"amount"`
	At         time.Time    `json:"at"`
	TransferID string       `json:"transfer_id,omitempty"`
}

// external reports whether the movement crosses the pool+escrow boundary,
// returning +1 for inflows, -1 for outflows and 0 for internal transfers.
func (m Movement) external() int {
	switch m.Kind {
	case MovementDeposit, MovementPoolFund:
		return 1
	case MovementPoolWithdraw:
		return -1
	case MovementRelease:
		if m.To == string(PartyPawner) {
			return -1
		}
	}
	return 0
}

// ledger moves funds between working copies of the pool and one escrow.
// Nothing it touches is visible to readers until the registry commits.
type ledger struct {
	pool   *Amount
	escrow *Escrow
	at     time.Time
	moves  []Movement

	transferID string
}

func (l *ledger) record(kind MovementKind, from, to string, amount Amount) {
	m := Movement{Kind: kind, From: from, To: to, Amount: amount, At: l.at}
	if l.escrow != nil {
		m.OrderID = l.escrow.OrderID
	}
	l.moves = append(l.moves, m)
}

// fundOwnerStake moves amount from the pool into the escrow.
func (l *ledger) fundOwnerStake(amount Amount) error {
	rest, ok := l.pool.Sub(amount)
	if !ok {
		return errorbank.InsufficientFunds("pool balance is too low to fund the owner stake",
			errorbank.WithDetail("pool", l.pool.String()),
			errorbank.WithDetail("required", amount.String()),
		)
	}
	*l.pool = rest
	l.escrow.Balance = l.escrow.Balance.Add(amount)
	l.record(MovementFundOwnerStake, string(PartyPool), string(PartyEscrow), amount)
	return nil
}

// deposit records an external transfer into the escrow.
func (l *ledger) deposit(from string, amount Amount) error {
	if amount.IsZero() {
		return errorbank.InvalidInput("deposit amount must be positive")
	}
	l.escrow.Balance = l.escrow.Balance.Add(amount)
	l.record(MovementDeposit, from, string(PartyEscrow), amount)
	l.moves[len(l.moves)-1].TransferID = l.transferID
	return nil
}

// release moves amount out of the escrow to the pawner or back to the pool.
func (l *ledger) release(amount Amount, dest Party) error {
	if dest != PartyPawner && dest != PartyPool {
		return errorbank.Internal(fmt.Sprintf("release to unsupported party %q", dest))
	}
	rest, ok := l.escrow.Balance.Sub(amount)
	if !ok {
		return errorbank.InsufficientFunds("escrow balance is too low for the release",
			errorbank.WithDetail("balance", l.escrow.Balance.String()),
			errorbank.WithDetail("required", amount.String()),
		)
	}
	l.escrow.Balance = rest
	switch dest {
	case PartyPool:
		*l.pool = l.pool.Add(amount)
	case PartyPawner:
		l.escrow.ReleasedToPawner = l.escrow.ReleasedToPawner.Add(amount)
	}
	l.record(MovementRelease, string(PartyEscrow), string(dest), amount)
	return nil
}

// drainToPool releases the whole remaining balance to the pool.
func (l *ledger) drainToPool() Amount {
	amount := l.escrow.Balance
	if amount.IsZero() {
		return amount
	}
	*l.pool = l.pool.Add(amount)
	l.escrow.Balance = Amount{}
	l.record(MovementDrain, string(PartyEscrow), string(PartyPool), amount)
	return amount
}

func (l *ledger) fundPool(from string, amount Amount) error {
	if amount.IsZero() {
		return errorbank.InvalidInput("pool funding amount must be positive")
	}
	*l.pool = l.pool.Add(amount)
	l.record(MovementPoolFund, from, string(PartyPool), amount)
	return nil
}

func (l *ledger) withdrawPool(to string, amount Amount) error {
	if amount.IsZero() {
		return errorbank.InvalidInput("withdrawal amount must be positive")
	}
	rest, ok := l.pool.Sub(amount)
	if !ok {
		return errorbank.InsufficientFunds("pool balance is too low for the withdrawal",
			errorbank.WithDetail("pool", l.pool.String()),
			errorbank.WithDetail("required", amount.String()),
		)
	}
	*l.pool = rest
	l.record(MovementPoolWithdraw, string(PartyPool), to, amount)
	return nil
}

// checkConservation verifies pool+escrow moved only by the external flows in moves.
func checkConservation(before, after Amount, moves []Movement) error {
	in, out := Amount{}, Amount{}
	for _, m := range moves {
		switch m.external() {
		case 1:
			in = in.Add(m.Amount)
		case -1:
			out = out.Add(m.Amount)
		}
	}
	if !before.Add(in).Equal(after.Add(out)) {
		return errorbank.Internal("ledger conservation violated",
			errorbank.WithDetail("before", before.String()),
			errorbank.WithDetail("after", after.String()),
			errorbank.WithDetail("inflow", in.String()),
			errorbank.WithDetail("outflow", out.String()),
		)
	}
	return nil
}
