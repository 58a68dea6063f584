package entity

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/pawnshop/internal/pawn"
)

// Escrow is the persisted custody record of an accepted order.
type Escrow struct {
	bun.BaseModel `bun:"table:pawn_escrows"`

	OrderID            int64       `bun:"order_id,pk"`
	Address            string      `bun:"address,notnull,unique"`
	Price              pawn.Amount `bun:"price,type:numeric(78,0),notnull"`
	OwnerStake         pawn.Amount `bun:"owner_stake,type:numeric(78,0),notnull"`
	PawnerStake        pawn.Amount `bun:"pawner_stake,type:numeric(78,0),notnull"`
	InterestPercent    int64       `bun:"interest_percent,notnull"`
	LoanLength         int64       `bun:"loan_length,notnull"`
	StartDate          int64       `bun:"start_date,notnull"`
	RepayAmount        pawn.Amount `bun:"repay_amount,type:numeric(78,0),notnull"`
	Status             string      `bun:"status,notnull"`
	PawnerShippingHash pawn.Hash   `bun:"pawner_shipping_hash,type:char(66),notnull"`
	OwnerShippingHash  pawn.Hash   `bun:"owner_shipping_hash,type:char(66),notnull"`
	Balance            pawn.Amount `bun:"balance,type:numeric(78,0),notnull"`
	PawnerDeposited    pawn.Amount `bun:"pawner_deposited,type:numeric(78,0),notnull"`
	Repaid             pawn.Amount `bun:"repaid,type:numeric(78,0),notnull"`
	ReleasedToPawner   pawn.Amount `bun:"released_to_pawner,type:numeric(78,0),notnull"`
	CreatedAt          time.Time   `bun:"created_at,notnull"`
	UpdatedAt          time.Time   `bun:"updated_at,notnull"`
}

func NewEscrow(e pawn.Escrow) Escrow {
	return Escrow{
		OrderID:            int64(e.OrderID),
		Address:            e.Address,
		Price:              e.Price,
		OwnerStake:         e.OwnerStake,
		PawnerStake:        e.PawnerStake,
		InterestPercent:    int64(e.InterestPercent),
		LoanLength:         int64(e.LoanLength),
		StartDate:          e.StartDate,
		RepayAmount:        e.RepayAmount,
		Status:             string(e.Status),
		PawnerShippingHash: e.PawnerShippingHash,
		OwnerShippingHash:  e.OwnerShippingHash,
		Balance:            e.Balance,
		PawnerDeposited:    e.PawnerDeposited,
		Repaid:             e.Repaid,
		ReleasedToPawner:   e.ReleasedToPawner,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func (e Escrow) Domain() pawn.Escrow {
	return pawn.Escrow{
		OrderID:            uint64(e.OrderID),
		Address:            e.Address,
		Price:              e.Price,
		OwnerStake:         e.OwnerStake,
		PawnerStake:        e.PawnerStake,
		InterestPercent:    uint64(e.InterestPercent),
		LoanLength:         uint64(e.LoanLength),
		StartDate:          e.StartDate,
		RepayAmount:        e.RepayAmount,
		Status:             pawn.Status(e.Status),
		PawnerShippingHash: e.PawnerShippingHash,
		OwnerShippingHash:  e.OwnerShippingHash,
		Balance:            e.Balance,
		PawnerDeposited:    e.PawnerDeposited,
		Repaid:             e.Repaid,
		ReleasedToPawner:   e.ReleasedToPawner,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}
