package pawn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
)

// OverdueSource lists overdue loans and announces them.
type OverdueSource interface {
	Overdue() []domain.Escrow
	AnnounceOverdue(escrow domain.Escrow) domain.Event
}

// Sweeper periodically announces loans past their expire date. It never
// changes order state; closing a defaulted loan stays with the owner.
type Sweeper struct {
	src      OverdueSource
	logger   *zap.Logger
	interval time.Duration

	announced map[uint64]struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper constructs a Sweeper over the pawn service.
func NewSweeper(svc *service.Service, logger *zap.Logger, cfg config.Config) *Sweeper {
	return newSweeper(svc, logger, cfg.Pawn.SweepInterval)
}

func newSweeper(src OverdueSource, logger *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		src:       src,
		logger:    logger,
		interval:  interval,
		announced: make(map[uint64]struct{}),
	}
}

// Sweep announces every newly overdue loan once and returns how many it announced.
func (s *Sweeper) Sweep(ctx context.Context) int {
	_, span := workerTracer.Start(ctx, "worker.overdue.sweep")
	defer span.End()

	overdue := s.src.Overdue()
	current := make(map[uint64]struct{}, len(overdue))
	count := 0
	for _, escrow := range overdue {
		current[escrow.OrderID] = struct{}{}
		if _, seen := s.announced[escrow.OrderID]; seen {
			continue
		}
		event := s.src.AnnounceOverdue(escrow)
		count++
		s.logger.Warn("loan overdue",
			zap.Uint64("order_id", escrow.OrderID),
			zap.Int64("expire_date", escrow.ExpireDate()),
			zap.String("owed", event.Amount.String()),
		)
	}
	s.announced = current

	span.SetAttributes(attribute.Int("overdue.total", len(overdue)), attribute.Int("overdue.announced", count))
	return count
}

func (s *Sweeper) start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()

	s.logger.Info("overdue sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
