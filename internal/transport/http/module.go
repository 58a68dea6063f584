package http

import (
	"go.uber.org/fx"

	pawntransport "github.com/Additional-Code/pawnshop/internal/transport/http/pawn"
	"github.com/Additional-Code/pawnshop/internal/transport/ws"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	pawntransport.Module,
	ws.Module,
)
