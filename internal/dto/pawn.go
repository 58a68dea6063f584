package dto

import (
	"encoding/json"
	"time"
)

// CreateOrderRequest is the body of POST /orders. Price is in whole units.
type CreateOrderRequest struct {
	Price       string `json:"price"`
	ItemName    string `json:"itemName"`
	Description string `json:"description"`
	Grade       string `json:"grade"`
}

// TrackingRequest carries a shipping tracking number, as a JSON number or a
// decimal string.
type TrackingRequest struct {
	TrackingNumber json.Number `json:"trackingNumber"`
}

// VerifyShipmentRequest asks whether a tracking number matches a stored commitment.
type VerifyShipmentRequest struct {
	Party          string      `json:"party"`
	TrackingNumber json.Number `json:"trackingNumber"`
}

// DepositRequest is one transfer into an escrow handle.
type DepositRequest struct {
	TransferID string `json:"transferId,omitempty"`
	From       string `json:"from"`
	Amount     string `json:"amount"`
}

// PoolRequest moves funds into or out of the business pool.
type PoolRequest struct {
	Party  string `json:"party"`
	Amount string `json:"amount"`
}

// OrderResponse is the public view of an order.
type OrderResponse struct {
	ID                 uint64    `json:"id"`
	Price              string    `json:"price"`
	PriceWei           string    `json:"price_wei"`
	ItemName           string    `json:"item_name"`
	Description        string    `json:"description"`
	Grade              string    `json:"grade"`
	Status             string    `json:"status"`
	Phase              string    `json:"phase"`
	StartDate          int64     `json:"start_date"`
	PawnerShippingHash string    `json:"pawner_shipping_hash"`
	OwnerShippingHash  string    `json:"owner_shipping_hash"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// VarsResponse is the flat view of an escrow's loan terms.
type VarsResponse struct {
	Price           string `json:"price"`
	PriceWei        string `json:"price_wei"`
	PawnerStake     string `json:"pawner_stake"`
	PawnerStakeWei  string `json:"pawner_stake_wei"`
	OwnerStake      string `json:"owner_stake"`
	OwnerStakeWei   string `json:"owner_stake_wei"`
	InterestPercent uint64 `json:"interest_percent"`
	LoanLength      uint64 `json:"loan_length"`
	StartDate       int64  `json:"start_date"`
	ExpireDate      int64  `json:"expire_date"`
	RepayAmount     string `json:"repay_amount"`
	RepayAmountWei  string `json:"repay_amount_wei"`
}

type AddressResponse struct {
	OrderID uint64 `json:"order_id"`
	Address string `json:"address"`
}

// BalanceResponse reports a balance held for an order, or the pool when OrderID is zero.
type BalanceResponse struct {
	OrderID    uint64 `json:"order_id,omitempty"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balance_wei"`
}

type RepayAmountResponse struct {
	OrderID        uint64 `json:"order_id"`
	RepayAmount    string `json:"repay_amount"`
	RepayAmountWei string `json:"repay_amount_wei"`
}

type DepositResponse struct {
	OrderID    uint64 `json:"order_id"`
	Status     string `json:"status"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balance_wei"`
}

type VerifyShipmentResponse struct {
	OrderID uint64 `json:"order_id"`
	Party   string `json:"party"`
	Match   bool   `json:"match"`
}

// EventResponse is one entry of an order's history.
type EventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	OrderID   uint64    `json:"order_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Amount    string    `json:"amount"`
	AmountWei string    `json:"amount_wei"`
	Party     string    `json:"party,omitempty"`
	At        time.Time `json:"at"`
}
