package pawn

import (
	"github.com/Additional-Code/pawnshop/internal/dto"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
)

func (h *Handler) orderDTO(o domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:                 o.ID,
		Price:              h.units.FromBase(o.Price),
		PriceWei:           o.Price.String(),
		ItemName:           o.ItemName,
		Description:        o.Description,
		Grade:              string(o.Grade),
		Status:             string(o.Status),
		Phase:              o.Phase(),
		StartDate:          o.StartDate,
		PawnerShippingHash: o.PawnerShippingHash.String(),
		OwnerShippingHash:  o.OwnerShippingHash.String(),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func (h *Handler) varsDTO(v domain.Vars) dto.VarsResponse {
	return dto.VarsResponse{
		Price:           h.units.FromBase(v.Price),
		PriceWei:        v.Price.String(),
		PawnerStake:     h.units.FromBase(v.PawnerStake),
		PawnerStakeWei:  v.PawnerStake.String(),
		OwnerStake:      h.units.FromBase(v.OwnerStake),
		OwnerStakeWei:   v.OwnerStake.String(),
		InterestPercent: v.InterestPercent,
		LoanLength:      v.LoanLength,
		StartDate:       v.StartDate,
		ExpireDate:      v.ExpireDate,
		RepayAmount:     h.units.FromBase(v.RepayAmount),
		RepayAmountWei:  v.RepayAmount.String(),
	}
}

func (h *Handler) balanceDTO(orderID uint64, balance domain.Amount) dto.BalanceResponse {
	return dto.BalanceResponse{
		OrderID:    orderID,
		Balance:    h.units.FromBase(balance),
		BalanceWei: balance.String(),
	}
}

func (h *Handler) eventDTO(e domain.Event) dto.EventResponse {
	return dto.EventResponse{
		ID:        e.ID,
		Type:      string(e.Type),
		OrderID:   e.OrderID,
		Status:    string(e.Status),
		Amount:    h.units.FromBase(e.Amount),
		AmountWei: e.Amount.String(),
		Party:     e.Party,
		At:        e.At,
	}
}
