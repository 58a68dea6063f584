package seeder

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder prepares a fresh database for local/dev setups.
type Seeder struct {
	svc    *service.Service
	amount string
	logger *zap.Logger
}

// New constructs a Seeder on top of the restored pawn service.
func New(svc *service.Service, cfg config.Config, logger *zap.Logger) *Seeder {
	return &Seeder{svc: svc, amount: cfg.Pawn.InitialPool, logger: logger}
}

// Pool funds the business pool with the configured initial amount, unless
// the registry already holds orders or funds. It reports whether it funded.
func (s *Seeder) Pool(ctx context.Context) (bool, error) {
	amount, err := s.svc.Units().ToBase(s.amount)
	if err != nil {
		return false, err
	}
	seeded, err := s.svc.SeedPool(ctx, amount)
	if err != nil {
		return false, err
	}

	if s.logger != nil {
		if seeded {
			s.logger.Info("seeded business pool", zap.String("amount", s.amount))
		} else {
			s.logger.Info("registry not empty; pool seed skipped")
		}
	}
	return seeded, nil
}
