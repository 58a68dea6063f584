package pawn

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/pawnshop/internal/repository/pawn"
)

// Module provides the pawn service to Fx and ties its restore and event
// delivery to the app lifecycle.
var Module = fx.Options(
	fx.Provide(
		NewService,
		func(r *repo.Repository) Store { return r },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
