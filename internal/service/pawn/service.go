package pawn

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/fatih/structs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/cache"
	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/messaging"
	"github.com/Additional-Code/pawnshop/internal/observability"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	repo "github.com/Additional-Code/pawnshop/internal/repository/pawn"
	"github.com/Additional-Code/pawnshop/internal/units"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/pawnshop/service/pawn")

// ErrDuplicateTransfer is returned when a deposit with an already seen transfer id arrives again.
var ErrDuplicateTransfer = errorbank.InvalidState("transfer already applied")

//go:generate mockgen -source=service.go -destination=mocks/store.go -package=mocks

// Store is the persistence the registry is journaled to and restored from.
type Store interface {
	AcquireWriter(ctx context.Context) (*repo.WriterLock, error)
	Commit(ctx context.Context, cs domain.Changeset) error
	Load(ctx context.Context) (repo.Snapshot, error)
	History(ctx context.Context, orderID uint64, limit int) ([]domain.Event, error)
}

// Service is the single writer in front of the registry. It restores state on
// start, journals every change and hands committed events to the sinks.
type Service struct {
	registry   *domain.Registry
	settings   config.Pawn
	store      Store
	lock       *repo.WriterLock
	cache      cache.Store
	dedupTTL   time.Duration
	units      units.Converter
	dispatcher *dispatcher
	metrics    *observability.PawnMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Config    config.Config
	Store     Store
	Cache     cache.Store
	Publisher messaging.Client
	Logger    *zap.Logger
	Metrics   *observability.PawnMetrics `optional:"true"`
	Sinks     []EventSink                `group:"pawn.sinks"`
	Clock     func() time.Time           `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	settlement, err := domain.SettlementByName(p.Config.Pawn.Settlement)
	if err != nil {
		return nil, err
	}

	sinks := make([]EventSink, 0, len(p.Sinks)+1)
	if p.Config.Messaging.Enabled && p.Publisher != nil {
		sinks = append(sinks, newKafkaSink(p.Publisher, p.Config.Messaging.Kafka.Topic))
	}
	for _, sink := range p.Sinks {
		if sink != nil {
			sinks = append(sinks, sink)
		}
	}

	s := &Service{
		settings:   p.Config.Pawn,
		store:      p.Store,
		cache:      p.Cache,
		dedupTTL:   p.Config.Pawn.DepositDedupTTL,
		units:      units.New(p.Config.Pawn.Decimals),
		dispatcher: newDispatcher(sinks, p.Logger, p.Metrics),
		metrics:    p.Metrics,
		logger:     p.Logger,
		now:        now,
	}
	s.registry = domain.NewRegistry(
		domain.WithJournal(journal{s}),
		domain.WithClock(now),
		domain.WithSettlement(settlement),
		domain.WithAddressDeriver(domain.AddressDeriver{
			Prefix: p.Config.Pawn.AddressPrefix,
			Salt:   []byte(p.Config.Pawn.AddressSalt),
		}),
	)
	return s, nil
}

// journal persists a changeset and, once it is durable, queues its events.
type journal struct {
	s *Service
}

func (j journal) Commit(ctx context.Context, cs domain.Changeset) error {
	if err := j.s.store.Commit(ctx, cs); err != nil {
		if errors.Is(err, repo.ErrStaleWriter) {
			j.s.logger.Error("registry is behind the journal; restart to reload it",
				zap.Uint64("version", cs.Version), zap.Error(err))
		}
		return err
	}
	j.s.metrics.RecordChangeset(ctx, cs)
	j.s.dispatcher.enqueue(cs.Events...)
	return nil
}

// Start takes the writer lock, restores the registry from the store and
// starts event delivery.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := serviceTracer.Start(ctx, "PawnService.Start")
	defer span.End()

	lock, err := s.store.AcquireWriter(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "writer lock unavailable")
		return fmt.Errorf("own registry: %w", err)
	}

	snap, err := s.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		s.releaseLock(ctx, lock)
		return fmt.Errorf("load registry: %w", err)
	}
	if err := s.registry.Restore(snap.Version, snap.Pool, snap.Orders, snap.Escrows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restore failed")
		s.releaseLock(ctx, lock)
		return err
	}
	s.lock = lock
	if err := s.metrics.ObservePool(s.poolGauge); err != nil {
		s.logger.Warn("pool gauge registration failed", zap.Error(err))
	}
	s.dispatcher.start()

	s.logger.Info("registry restored",
		zap.Uint64("version", snap.Version),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("escrows", len(snap.Escrows)),
		zap.String("pool", snap.Pool.String()),
		zap.Any("settings", structs.Map(s.settings)),
	)
	return nil
}

// Stop flushes queued events and gives up the writer lock.
func (s *Service) Stop(ctx context.Context) error {
	s.dispatcher.stop(ctx)
	s.releaseLock(ctx, s.lock)
	s.lock = nil
	return s.metrics.Close()
}

func (s *Service) releaseLock(ctx context.Context, lock *repo.WriterLock) {
	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("release writer lock", zap.Error(err))
	}
}

func (s *Service) poolGauge() float64 {
	return s.units.Float(s.registry.PoolBalance())
}

// CreateOrderInput describes a new loan request.
type CreateOrderInput struct {
	Price       domain.Amount
	ItemName    string
	Description string
	Grade       string
}

// CreateOrder registers a PENDING order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService.CreateOrder", trace.WithAttributes(
		attribute.String("order.grade", in.Grade),
	))
	defer span.End()

	grade, err := domain.ParseGrade(in.Grade)
	if err != nil {
		s.fail(span, "create order", 0, err)
		return domain.Order{}, err
	}
	id, err := s.registry.CreateOrder(ctx, domain.CreateOrderParams{
		Price:       in.Price,
		ItemName:    strings.TrimSpace(in.ItemName),
		Description: strings.TrimSpace(in.Description),
		Grade:       grade,
	})
	if err != nil {
		s.fail(span, "create order", 0, err)
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.Int64("order.id", int64(id)))
	s.logger.Info("order created", zap.Uint64("order_id", id), zap.String("grade", string(grade)), zap.String("price", in.Price.String()))
	return s.registry.GetOrder(id)
}

func (s *Service) AcceptOrder(ctx context.Context, id uint64) (domain.Order, error) {
	return s.mutate(ctx, "AcceptOrder", id, func(ctx context.Context) error {
		return s.registry.AcceptOrder(ctx, id)
	})
}

func (s *Service) AssignPawnerShippingHash(ctx context.Context, id uint64, trackingNumber *big.Int) (domain.Order, error) {
	return s.mutate(ctx, "AssignPawnerShippingHash", id, func(ctx context.Context) error {
		return s.registry.AssignPawnerShippingHash(ctx, id, trackingNumber)
	})
}

func (s *Service) AssignOwnerShippingHash(ctx context.Context, id uint64, trackingNumber *big.Int) (domain.Order, error) {
	return s.mutate(ctx, "AssignOwnerShippingHash", id, func(ctx context.Context) error {
		return s.registry.AssignOwnerShippingHash(ctx, id, trackingNumber)
	})
}

func (s *Service) OwnerConfirmShipping(ctx context.Context, id uint64) (domain.Order, error) {
	return s.mutate(ctx, "OwnerConfirmShipping", id, func(ctx context.Context) error {
		return s.registry.OwnerConfirmShipping(ctx, id)
	})
}

func (s *Service) PawnerConfirmShipping(ctx context.Context, id uint64) (domain.Order, error) {
	return s.mutate(ctx, "PawnerConfirmShipping", id, func(ctx context.Context) error {
		return s.registry.PawnerConfirmShipping(ctx, id)
	})
}

func (s *Service) OwnerWithdrawStakeEarly(ctx context.Context, id uint64) (domain.Order, error) {
	return s.mutate(ctx, "OwnerWithdrawStakeEarly", id, func(ctx context.Context) error {
		return s.registry.OwnerWithdrawStakeEarly(ctx, id)
	})
}

func (s *Service) DeleteOrder(ctx context.Context, id uint64) (domain.Order, error) {
	return s.mutate(ctx, "DeleteOrder", id, func(ctx context.Context) error {
		return s.registry.DeleteOrder(ctx, id)
	})
}

// CheckRepayAmount recomputes the amount owed while the loan runs.
func (s *Service) CheckRepayAmount(ctx context.Context, id uint64) (domain.Amount, error) {
	var amount domain.Amount
	_, err := s.mutate(ctx, "CheckRepayAmount", id, func(ctx context.Context) error {
		var err error
		amount, err = s.registry.CheckRepayAmount(ctx, id)
		return err
	})
	return amount, err
}

func (s *Service) mutate(ctx context.Context, op string, id uint64, fn func(context.Context) error) (domain.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService."+op, trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	if err := fn(ctx); err != nil {
		s.fail(span, op, id, err)
		return domain.Order{}, err
	}
	order, err := s.registry.GetSubContractOrder(id)
	if err != nil {
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order.phase", order.Phase()))
	s.logger.Debug("order updated", zap.String("op", op), zap.Uint64("order_id", id), zap.String("phase", order.Phase()))
	return order, nil
}

// fail annotates the span and logs only unexpected errors; rejected
// operations are ordinary outcomes.
func (s *Service) fail(span trace.Span, op string, id uint64, err error) {
	span.RecordError(err)
	if errorbank.From(err).Kind() != errorbank.KindInternal {
		return
	}
	span.SetStatus(codes.Error, op+" failed")
	s.logger.Error("pawn operation failed", zap.String("op", op), zap.Uint64("order_id", id), zap.Error(err))
}

// DepositInput is one external transfer into an escrow handle.
type DepositInput struct {
	TransferID string
	Address    string
	From       string
	Amount     domain.Amount
}

// Deposit credits an escrow. Transfers carrying an id are applied at most
// once: the cache claim filters redeliveries cheaply and the journal rejects
// any transfer id it has already stored.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (domain.Escrow, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService.Deposit", trace.WithAttributes(
		attribute.String("escrow.address", in.Address),
		attribute.String("transfer.id", in.TransferID),
	))
	defer span.End()

	key := ""
	if in.TransferID != "" {
		key = "pawn:transfer:" + in.TransferID
		claimed, err := s.cache.Claim(ctx, key, s.dedupTTL)
		if err != nil {
			err = errorbank.Internal("transfer dedup unavailable", errorbank.WithCause(err))
			s.fail(span, "Deposit", 0, err)
			return domain.Escrow{}, err
		}
		if !claimed {
			s.logger.Info("duplicate transfer ignored", zap.String("transfer_id", in.TransferID))
			return domain.Escrow{}, ErrDuplicateTransfer
		}
	}

	escrow, err := s.registry.ApplyTransfer(ctx, domain.Transfer{
		ID:      in.TransferID,
		Address: in.Address,
		From:    in.From,
		Amount:  in.Amount,
	})
	if errors.Is(err, repo.ErrDuplicateTransfer) {
		s.logger.Info("duplicate transfer ignored", zap.String("transfer_id", in.TransferID), zap.String("source", "journal"))
		return domain.Escrow{}, ErrDuplicateTransfer
	}
	if err != nil {
		if key != "" {
			if delErr := s.cache.Release(ctx, key); delErr != nil {
				s.logger.Warn("release transfer claim", zap.String("transfer_id", in.TransferID), zap.Error(delErr))
			}
		}
		s.fail(span, "Deposit", 0, err)
		return domain.Escrow{}, err
	}
	span.SetAttributes(attribute.Int64("order.id", int64(escrow.OrderID)), attribute.String("order.status", string(escrow.Status)))
	s.logger.Info("deposit applied",
		zap.Uint64("order_id", escrow.OrderID),
		zap.String("amount", in.Amount.String()),
		zap.String("status", string(escrow.Status)),
	)
	return escrow, nil
}

// FundPool credits the business pool.
func (s *Service) FundPool(ctx context.Context, from string, amount domain.Amount) (domain.Amount, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService.FundPool")
	defer span.End()

	pool, err := s.registry.FundPool(ctx, from, amount)
	if err != nil {
		s.fail(span, "FundPool", 0, err)
		return domain.Amount{}, err
	}
	s.logger.Info("pool funded", zap.String("amount", amount.String()), zap.String("pool", pool.String()))
	return pool, nil
}

// WithdrawPool pays out of the business pool.
func (s *Service) WithdrawPool(ctx context.Context, to string, amount domain.Amount) (domain.Amount, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService.WithdrawPool")
	defer span.End()

	pool, err := s.registry.WithdrawPool(ctx, to, amount)
	if err != nil {
		s.fail(span, "WithdrawPool", 0, err)
		return domain.Amount{}, err
	}
	s.logger.Info("pool withdrawn", zap.String("amount", amount.String()), zap.String("pool", pool.String()))
	return pool, nil
}

// SeedPool funds the pool only when the registry has never been used.
func (s *Service) SeedPool(ctx context.Context, amount domain.Amount) (bool, error) {
	if s.registry.Len() > 0 || !s.registry.PoolBalance().IsZero() {
		return false, nil
	}
	if _, err := s.FundPool(ctx, string(domain.PartyOwner), amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Order(id uint64) (domain.Order, error) {
	return s.registry.GetOrder(id)
}

func (s *Service) SubContractOrder(id uint64) (domain.Order, error) {
	return s.registry.GetSubContractOrder(id)
}

func (s *Service) Escrow(id uint64) (domain.Escrow, error) {
	return s.registry.GetEscrow(id)
}

func (s *Service) SubContractAddress(id uint64) (string, error) {
	return s.registry.GetSubContractAddress(id)
}

func (s *Service) SubContractVars(id uint64) (domain.Vars, error) {
	return s.registry.GetSubContractVars(id)
}

func (s *Service) EscrowBalance(id uint64) (domain.Amount, error) {
	return s.registry.EscrowBalance(id)
}

func (s *Service) PoolBalance() domain.Amount {
	return s.registry.PoolBalance()
}

// Orders lists orders by filter: all, pending, active (neither PENDING nor
// COMPLETED) or completed.
func (s *Service) Orders(filter string) ([]domain.Order, error) {
	statuses, err := domain.FilterStatuses(filter)
	if err != nil {
		return nil, err
	}
	all := s.registry.GetAllOrders()
	if statuses == nil {
		return all, nil
	}

	keep := make(map[domain.Status]bool, len(statuses))
	for _, st := range statuses {
		keep[st] = true
	}
	out := make([]domain.Order, 0, len(all))
	for _, o := range all {
		if keep[o.Status] {
			out = append(out, o)
		}
	}
	return out, nil
}

// VerifyShipment checks a revealed tracking number against the stored commitment.
func (s *Service) VerifyShipment(id uint64, party string, trackingNumber *big.Int) (bool, error) {
	return s.registry.VerifyShipment(id, domain.Party(strings.ToLower(strings.TrimSpace(party))), trackingNumber)
}

// History returns the projected event log of an order.
func (s *Service) History(ctx context.Context, id uint64, limit int) ([]domain.Event, error) {
	ctx, span := serviceTracer.Start(ctx, "PawnService.History", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	if _, err := s.registry.GetOrder(id); err != nil {
		return nil, err
	}
	events, err := s.store.History(ctx, id, limit)
	if err != nil {
		err = errorbank.Internal("failed to load order history", errorbank.WithCause(err))
		s.fail(span, "History", id, err)
		return nil, err
	}
	return events, nil
}

// Overdue lists running loans past their expire date.
func (s *Service) Overdue() []domain.Escrow {
	return s.registry.Overdue(s.now())
}

// AnnounceOverdue publishes a loan.overdue event carrying the amount owed now.
// No state changes.
func (s *Service) AnnounceOverdue(escrow domain.Escrow) domain.Event {
	now := s.now()
	event := domain.NewEvent(domain.EventLoanOverdue, escrow.OrderID, escrow.Status, domain.RequiredRepayment(escrow, now), now)
	s.dispatcher.enqueue(event)
	return event
}

// Units is the converter between whole units and base amounts.
func (s *Service) Units() units.Converter {
	return s.units
}
