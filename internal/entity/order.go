package entity

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/pawnshop/internal/pawn"
)

// Order is the persisted parent record of a loan request.
type Order struct {
	bun.BaseModel `bun:"table:pawn_orders"`

	ID                 int64       `bun:"id,pk"`
	Price              pawn.Amount `bun:"price,type:numeric(78,0),notnull"`
	ItemName           string      `bun:"item_name,notnull"`
	Description        string      `bun:"description,notnull"`
	Grade              string      `bun:"grade,notnull"`
	Status             string      `bun:"status,notnull"`
	StartDate          int64       `bun:"start_date,notnull"`
	PawnerShippingHash pawn.Hash   `bun:"pawner_shipping_hash,type:char(66),notnull"`
	OwnerShippingHash  pawn.Hash   `bun:"owner_shipping_hash,type:char(66),notnull"`
	CreatedAt          time.Time   `bun:"created_at,notnull"`
	UpdatedAt          time.Time   `bun:"updated_at,notnull"`
}

// NewOrder maps a registry order onto its row.
func NewOrder(o pawn.Order) Order {
	return Order{
		ID:                 int64(o.ID),
		Price:              o.Price,
		ItemName:           o.ItemName,
		Description:        o.Description,
		Grade:              string(o.Grade),
		Status:             string(o.Status),
		StartDate:          o.StartDate,
		PawnerShippingHash: o.PawnerShippingHash,
		OwnerShippingHash:  o.OwnerShippingHash,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// Domain converts the row back into a registry order.
func (o Order) Domain() pawn.Order {
	return pawn.Order{
		ID:                 uint64(o.ID),
		Price:              o.Price,
		ItemName:           o.ItemName,
		Description:        o.Description,
		Grade:              pawn.Grade(o.Grade),
		Status:             pawn.Status(o.Status),
		StartDate:          o.StartDate,
		PawnerShippingHash: o.PawnerShippingHash,
		OwnerShippingHash:  o.OwnerShippingHash,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}
