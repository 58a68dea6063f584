package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/pawnshop/internal/pawn"
)

// PoolID is the key of the single pool row.
const PoolID = 1

// Pool holds the business balance. Version counts committed changesets and
// fences out any writer that staged its work on an older state.
type Pool struct {
	bun.BaseModel `bun:"table:pawn_pool"`

	ID        int16       `bun:"id,pk"`
	Balance   pawn.Amount `bun:"balance,type:numeric(78,0),notnull"`
	Version   int64       `bun:"version,notnull"`
	UpdatedAt time.Time   `bun:"updated_at,notnull"`
}

// Movement is one append-only ledger line.
type Movement struct {
	bun.BaseModel `bun:"table:pawn_movements"`

	ID         uuid.UUID   `bun:"id,pk,type:uuid"`
	OrderID    *int64      `bun:"order_id"`
	Kind       string      `bun:"kind,notnull"`
	From       string      `bun:"from_party,notnull"`
	To         string      `bun:"to_party,notnull"`
	Amount     pawn.Amount `bun:"amount,type:numeric(78,0),notnull"`
	TransferID *string     `bun:"transfer_id"`
	At         time.Time   `bun:"at,notnull"`
}

func NewMovement(m pawn.Movement) Movement {
	return Movement{
		ID:         uuid.New(),
		OrderID:    optionalID(m.OrderID),
		Kind:       string(m.Kind),
		From:       m.From,
		To:         m.To,
		Amount:     m.Amount,
		TransferID: optionalString(m.TransferID),
		At:         m.At,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalID(id uint64) *int64 {
	if id == 0 {
		return nil
	}
	v := int64(id)
	return &v
}
