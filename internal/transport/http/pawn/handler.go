package pawn

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/pawnshop/internal/dto"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	"github.com/Additional-Code/pawnshop/internal/presentation/http/response"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
	"github.com/Additional-Code/pawnshop/internal/units"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/pawnshop/transport/http/pawn")

const defaultHistoryLimit = 100

// Handler relays pawn operations over HTTP.
type Handler struct {
	svc   *service.Service
	units units.Converter
}

// NewHandler constructs a pawn Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc, units: svc.Units()}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	orders := e.Group("/orders")
	orders.GET("", h.listOrders)
	orders.POST("", h.createOrder)
	orders.GET("/:id", h.getOrder)
	orders.GET("/:id/escrow", h.getSubContractOrder)
	orders.GET("/:id/escrow/address", h.getSubContractAddress)
	orders.GET("/:id/escrow/vars", h.getSubContractVars)
	orders.GET("/:id/escrow/balance", h.getSubContractBalance)
	orders.GET("/:id/history", h.history)
	orders.POST("/:id/accept", h.transition("acceptOrder", h.svc.AcceptOrder))
	orders.POST("/:id/withdraw-early", h.transition("ownerWithdrawStakeEarly", h.svc.OwnerWithdrawStakeEarly))
	orders.POST("/:id/delete", h.transition("deleteOrder", h.svc.DeleteOrder))
	orders.POST("/:id/shipping/pawner", h.assignShipping("assignPawnerShippingHash", h.svc.AssignPawnerShippingHash))
	orders.POST("/:id/shipping/owner", h.assignShipping("assignOwnerShippingHash", h.svc.AssignOwnerShippingHash))
	orders.POST("/:id/shipping/owner/confirm", h.transition("ownerConfirmShipping", h.svc.OwnerConfirmShipping))
	orders.POST("/:id/shipping/pawner/confirm", h.transition("pawnerConfirmShipping", h.svc.PawnerConfirmShipping))
	orders.POST("/:id/shipping/verify", h.verifyShipment)
	orders.POST("/:id/repay-amount", h.checkRepayAmount)

	e.POST("/escrows/:address/deposits", h.deposit)

	e.GET("/pool", h.getPool)
	e.POST("/pool/fund", h.fundPool)
	e.POST("/pool/withdraw", h.withdrawPool)
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.InvalidInput("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func (h *Handler) getOrder(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.svc.Order(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.orderDTO(order)).Build()
}

func (h *Handler) getSubContractOrder(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.svc.SubContractOrder(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.orderDTO(order)).Build()
}

func (h *Handler) getSubContractAddress(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	addr, err := h.svc.SubContractAddress(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.AddressResponse{OrderID: id, Address: addr}).Build()
}

func (h *Handler) getSubContractVars(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	vars, err := h.svc.SubContractVars(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.varsDTO(vars)).Build()
}

func (h *Handler) getSubContractBalance(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	balance, err := h.svc.EscrowBalance(id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.balanceDTO(id, balance)).Build()
}

func (h *Handler) listOrders(c echo.Context) error {
	b := response.New(c)
	filter := c.QueryParam("status")
	orders, err := h.svc.Orders(filter)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, h.orderDTO(o))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) history(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			return b.WithError(errorbank.InvalidInput("limit must be a positive integer")).Build()
		}
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.history", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	events, err := h.svc.History(ctx, id, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, h.eventDTO(e))
	}
	return b.WithData(out).Build()
}

func (h *Handler) createOrder(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
	}
	price, err := h.units.ToBase(payload.Price)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(attribute.String("order.grade", payload.Grade))
	defer span.End()

	order, err := h.svc.CreateOrder(ctx, service.CreateOrderInput{
		Price:       price,
		ItemName:    payload.ItemName,
		Description: payload.Description,
		Grade:       payload.Grade,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(h.orderDTO(order)).Build()
}

// transition adapts an id-only state change to a handler.
func (h *Handler) transition(name string, fn func(context.Context, uint64) (domain.Order, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)
		id, err := parseID(c)
		if err != nil {
			return b.WithError(err).Build()
		}

		ctx, span := httpTracer.Start(c.Request().Context(), "orders."+name, trace.WithAttributes(attribute.Int64("order.id", int64(id))))
		defer span.End()

		order, err := fn(ctx, id)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(h.orderDTO(order)).Build()
	}
}

func (h *Handler) assignShipping(name string, fn func(context.Context, uint64, *big.Int) (domain.Order, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)
		id, err := parseID(c)
		if err != nil {
			return b.WithError(err).Build()
		}
		var payload dto.TrackingRequest
		if err := c.Bind(&payload); err != nil {
			return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
		}
		tn, err := domain.ParseTrackingNumber(payload.TrackingNumber.String())
		if err != nil {
			return b.WithError(err).Build()
		}

		ctx, span := httpTracer.Start(c.Request().Context(), "orders."+name, trace.WithAttributes(attribute.Int64("order.id", int64(id))))
		defer span.End()

		order, err := fn(ctx, id, tn)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(h.orderDTO(order)).Build()
	}
}

func (h *Handler) verifyShipment(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.VerifyShipmentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
	}
	tn, err := domain.ParseTrackingNumber(payload.TrackingNumber.String())
	if err != nil {
		return b.WithError(err).Build()
	}
	match, err := h.svc.VerifyShipment(id, payload.Party, tn)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.VerifyShipmentResponse{OrderID: id, Party: payload.Party, Match: match}).Build()
}

func (h *Handler) checkRepayAmount(c echo.Context) error {
	b := response.New(c)
	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.checkRepayAmount", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	amount, err := h.svc.CheckRepayAmount(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.RepayAmountResponse{
		OrderID:        id,
		RepayAmount:    h.units.FromBase(amount),
		RepayAmountWei: amount.String(),
	}).Build()
}

func (h *Handler) deposit(c echo.Context) error {
	b := response.New(c)

	var payload dto.DepositRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
	}
	amount, err := h.units.ToBase(payload.Amount)
	if err != nil {
		return b.WithError(err).Build()
	}

	address := c.Param("address")
	ctx, span := httpTracer.Start(c.Request().Context(), "escrows.deposit", trace.WithAttributes(attribute.String("escrow.address", address)))
	defer span.End()

	escrow, err := h.svc.Deposit(ctx, service.DepositInput{
		TransferID: payload.TransferID,
		Address:    address,
		From:       payload.From,
		Amount:     amount,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.DepositResponse{
		OrderID:    escrow.OrderID,
		Status:     string(escrow.Status),
		Balance:    h.units.FromBase(escrow.Balance),
		BalanceWei: escrow.Balance.String(),
	}).Build()
}

func (h *Handler) getPool(c echo.Context) error {
	return response.New(c).WithData(h.balanceDTO(0, h.svc.PoolBalance())).Build()
}

func (h *Handler) fundPool(c echo.Context) error {
	return h.movePool(c, "pool.fund", h.svc.FundPool)
}

func (h *Handler) withdrawPool(c echo.Context) error {
	return h.movePool(c, "pool.withdraw", h.svc.WithdrawPool)
}

func (h *Handler) movePool(c echo.Context, name string, fn func(context.Context, string, domain.Amount) (domain.Amount, error)) error {
	b := response.New(c)

	var payload dto.PoolRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.InvalidInput("invalid payload", errorbank.WithCause(err))).Build()
	}
	amount, err := h.units.ToBase(payload.Amount)
	if err != nil {
		return b.WithError(err).Build()
	}
	party := payload.Party
	if party == "" {
		party = string(domain.PartyOwner)
	}

	ctx, span := httpTracer.Start(c.Request().Context(), name)
	defer span.End()

	pool, err := fn(ctx, party, amount)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.balanceDTO(0, pool)).Build()
}
