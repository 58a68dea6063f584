package pawn

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle or fund event.
type EventType string

const (
	EventOrderCreated           EventType = "order.created"
	EventOrderAccepted          EventType = "order.accepted"
	EventOrderDeposit           EventType = "order.deposit"
	EventOrderStaked            EventType = "order.staked"
	EventPawnerShippingAssigned EventType = "shipping.pawner_assigned"
	EventLoanStarted            EventType = "loan.started"
	EventLoanRepayAmount        EventType = "loan.repay_amount"
	EventOrderPayed             EventType = "order.payed"
	EventOwnerShippingAssigned  EventType = "shipping.owner_assigned"
	EventOrderCompleted         EventType = "order.completed"
	EventOrderExpired           EventType = "order.expired"
	EventPawnerPayout           EventType = "payout.pawner"
	EventPoolFunded             EventType = "pool.funded"
	EventPoolWithdrawn          EventType = "pool.withdrawn"
	EventLoanOverdue            EventType = "loan.overdue"
)

// Event describes one committed change. OrderID is zero for pool events.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	OrderID uint64    `json:"order_id,omitempty"`
	Status  Status    `json:"status,omitempty"`
	Amount  Amount    `json:"amount"`
	Party   string    `json:"party,omitempty"`
	At      time.Time `json:"at"`
}

// NewEvent stamps a fresh event id.
func NewEvent(typ EventType, orderID uint64, status Status, amount Amount, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		OrderID: orderID,
		Status:  status,
		Amount:  amount,
		At:      at,
	}
}
