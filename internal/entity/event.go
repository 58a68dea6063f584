package entity

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/pawnshop/internal/pawn"
)

// Event is a row of the order history projection.
type Event struct {
	bun.BaseModel `bun:"table:pawn_events"`

	ID      string      `bun:"id,pk,type:uuid"`
	Type    string      `bun:"type,notnull"`
	OrderID *int64      `bun:"order_id"`
	Status  string      `bun:"status,notnull"`
	Amount  pawn.Amount `bun:"amount,type:numeric(78,0),notnull"`
	Party   string      `bun:"party,notnull"`
	At      time.Time   `bun:"at,notnull"`
}

func NewEvent(e pawn.Event) Event {
	return Event{
		ID:      e.ID,
		Type:    string(e.Type),
		OrderID: optionalID(e.OrderID),
		Status:  string(e.Status),
		Amount:  e.Amount,
		Party:   e.Party,
		At:      e.At,
	}
}

func (e Event) Domain() pawn.Event {
	var orderID uint64
	if e.OrderID != nil {
		orderID = uint64(*e.OrderID)
	}
	return pawn.Event{
		ID:      e.ID,
		Type:    pawn.EventType(e.Type),
		OrderID: orderID,
		Status:  pawn.Status(e.Status),
		Amount:  e.Amount,
		Party:   e.Party,
		At:      e.At,
	}
}
