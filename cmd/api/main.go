// Command api runs the pawn escrow relay: HTTP and gRPC servers, the
// deposit consumer and the overdue sweeper.
package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/pawnshop/internal/app"
	"github.com/Additional-Code/pawnshop/internal/logger"
)

func main() {
	fx.New(app.Module, fx.WithLogger(logger.FxEvents)).Run()
}
