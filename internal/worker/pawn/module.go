package pawn

import "go.uber.org/fx"

// TransfersModule registers the deposit consumer and the overdue sweeper.
// Both drive the in-process registry, so they run inside the service process.
var TransfersModule = fx.Module("worker_pawn_transfers",
	fx.Provide(
		fx.Annotate(
			NewTransferHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		NewSweeper,
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: s.start,
			OnStop:  s.stop,
		})
	}),
)

// ProjectionModule registers the event history projection consumer.
var ProjectionModule = fx.Module("worker_pawn_projection",
	fx.Provide(
		fx.Annotate(
			NewProjectionHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)
