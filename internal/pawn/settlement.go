package pawn

import (
	"fmt"
	"strings"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Split divides a closing escrow balance between the pool and the pawner.
type Split struct {
	Pool   Amount
	Pawner Amount
}

// Settlement decides how an escrow balance is paid out when the order closes.
type Settlement interface {
	Name() string
	// Expire splits the balance of an escrow closed by early withdrawal or deletion.
	Expire(e Escrow) Split
	// Complete splits the balance of a repaid escrow once the collateral is returned.
	Complete(e Escrow) Split
}

// RefundSettlement gives the pool back what the owner put in, plus the
// repayment on completion, and refunds everything else to the pawner.
type RefundSettlement struct{}

func (RefundSettlement) Name() string { return "refund" }

func (RefundSettlement) Expire(e Escrow) Split {
	owner := e.OwnerStake.SaturatingSub(e.ReleasedToPawner)
	pool := MinAmount(e.Balance, owner)
	return Split{Pool: pool, Pawner: e.Balance.SaturatingSub(pool)}
}

func (RefundSettlement) Complete(e Escrow) Split {
	owed := e.OwnerStake.SaturatingSub(e.ReleasedToPawner).Add(e.RepayAmount)
	pool := MinAmount(e.Balance, owed)
	return Split{Pool: pool, Pawner: e.Balance.SaturatingSub(pool)}
}

// ForfeitSettlement drains expired escrows entirely to the pool.
type ForfeitSettlement struct {
	RefundSettlement
}

func (ForfeitSettlement) Name() string { return "forfeit" }

func (ForfeitSettlement) Expire(e Escrow) Split {
	return Split{Pool: e.Balance}
}

// SettlementByName resolves a configured policy name.
func SettlementByName(name string) (Settlement, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "refund":
		return RefundSettlement{}, nil
	case "forfeit":
		return ForfeitSettlement{}, nil
	default:
		return nil, fmt.Errorf("unsupported settlement policy: %s", name)
	}
}

// settle pays out split and empties the escrow. The split must cover the balance exactly.
func (l *ledger) settle(split Split) error {
	if !split.Pool.Add(split.Pawner).Equal(l.escrow.Balance) {
		return errorbank.Internal("settlement split does not match escrow balance",
			errorbank.WithDetail("balance", l.escrow.Balance.String()),
			errorbank.WithDetail("pool", split.Pool.String()),
			errorbank.WithDetail("pawner", split.Pawner.String()),
		)
	}
	if !split.Pawner.IsZero() {
		if err := l.release(split.Pawner, PartyPawner); err != nil {
			return err
		}
	}
	l.drainToPool()
	return nil
}
