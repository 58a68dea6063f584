package ws

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
)

// Module provides the event hub as a pawn event sink and mounts /ws/events.
var Module = fx.Options(
	fx.Provide(
		NewHub,
		fx.Annotate(
			func(h *Hub) service.EventSink { return h },
			fx.ResultTags(`group:"pawn.sinks"`),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, e *echo.Echo, h *Hub) {
		e.GET("/ws/events", h.Handle)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				h.Close()
				return nil
			},
		})
	}),
)
