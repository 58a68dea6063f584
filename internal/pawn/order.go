package pawn

import (
	"fmt"
	"strings"
	"time"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

// Status is the lifecycle position of an order and its escrow.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusStaked    Status = "STAKED"
	StatusPayed     Status = "PAYED"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// PhaseInProgress labels a STAKED order whose loan clock is running.
const PhaseInProgress = "INPROGRESS"

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusAccepted:  1,
	StatusStaked:    2,
	StatusPayed:     3,
	StatusCompleted: 4,
	StatusExpired:   4,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// FilterStatuses maps an order list filter onto the statuses it selects:
// all (nil), pending, active (neither PENDING nor COMPLETED) or completed.
func FilterStatuses(filter string) ([]Status, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "all":
		return nil, nil
	case "pending":
		return []Status{StatusPending}, nil
	case "active":
		return []Status{StatusAccepted, StatusStaked, StatusPayed, StatusExpired}, nil
	case "completed":
		return []Status{StatusCompleted}, nil
	default:
		return nil, errorbank.InvalidInput(fmt.Sprintf("unknown order filter %q", filter))
	}
}

// Order is one loan request. The registry owns it; callers only see copies.
type Order struct {
	ID                 uint64    `json:"id"`
	Price              Amount    `json:"price"`
	ItemName           string    `json:"item_name"`
	Description        string    `json:"description"`
	Grade              Grade     `json:"grade"`
	Status             Status    `json:"status"`
	StartDate          int64     `json:"start_date"`
	PawnerShippingHash Hash      `json:"pawner_shipping_hash"`
	OwnerShippingHash  Hash      `json:"owner_shipping_hash"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Phase is the status with the running-clock STAKED sub-state split out.
func (o Order) Phase() string {
	if o.Status == StatusStaked && o.StartDate != 0 {
		return PhaseInProgress
	}
	return string(o.Status)
}

// Escrow is the fund-custody unit created when an order is accepted.
type Escrow struct {
	OrderID            uint64    `json:"order_id"`
	Address            string    `json:"address"`
	Price              Amount    `json:"price"`
	OwnerStake         Amount    `json:"owner_stake"`
	PawnerStake        Amount    `json:"pawner_stake"`
	InterestPercent    uint64    `json:"interest_percent"`
	LoanLength         uint64    `json:"loan_length"`
	StartDate          int64     `json:"start_date"`
	RepayAmount        Amount    `json:"repay_amount"`
	Status             Status    `json:"status"`
	PawnerShippingHash Hash      `json:"pawner_shipping_hash"`
	OwnerShippingHash  Hash      `json:"owner_shipping_hash"`
	Balance            Amount    `json:"balance"`
	PawnerDeposited    Amount    `json:"pawner_deposited"`
	Repaid             Amount    `json:"repaid"`
	ReleasedToPawner   Amount    `json:"released_to_pawner"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ExpireDate is when the loan term ends, or zero before the clock starts.
func (e Escrow) ExpireDate() int64 {
	if e.StartDate == 0 {
		return 0
	}
	return e.StartDate + int64(e.LoanLength)
}

// ClockRunning reports whether the owner has confirmed receipt of the collateral.
func (e Escrow) ClockRunning() bool {
	return e.StartDate != 0
}

// StakeTarget is the balance that promotes an accepted escrow to STAKED.
func (e Escrow) StakeTarget() Amount {
	return e.OwnerStake.Add(e.PawnerStake)
}

// Vars is the flat view of an escrow's loan terms.
type Vars struct {
	Price           Amount `json:"price"`
	PawnerStake     Amount `json:"pawner_stake"`
	OwnerStake      Amount `json:"owner_stake"`
	InterestPercent uint64 `json:"interest_percent"`
	LoanLength      uint64 `json:"loan_length"`
	StartDate       int64  `json:"start_date"`
	ExpireDate      int64  `json:"expire_date"`
	RepayAmount     Amount `json:"repay_amount"`
}

// Vars returns the escrow's loan terms.
func (e Escrow) Vars() Vars {
	return Vars{
		Price:           e.Price,
		PawnerStake:     e.PawnerStake,
		OwnerStake:      e.OwnerStake,
		InterestPercent: e.InterestPercent,
		LoanLength:      e.LoanLength,
		StartDate:       e.StartDate,
		ExpireDate:      e.ExpireDate(),
		RepayAmount:     e.RepayAmount,
	}
}

// overlay returns the order as observed through its escrow.
func (e Escrow) overlay(o Order) Order {
	o.Status = e.Status
	o.StartDate = e.StartDate
	o.PawnerShippingHash = e.PawnerShippingHash
	o.OwnerShippingHash = e.OwnerShippingHash
	return o
}
