package pawn

import "go.uber.org/fx"

// Module provides the pawn repository to Fx.
var Module = fx.Provide(NewRepository)
