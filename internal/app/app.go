package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/pawnshop/internal/broadcast"
	"github.com/Additional-Code/pawnshop/internal/cache"
	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/database"
	"github.com/Additional-Code/pawnshop/internal/logger"
	"github.com/Additional-Code/pawnshop/internal/messaging"
	"github.com/Additional-Code/pawnshop/internal/observability"
	repositorypawn "github.com/Additional-Code/pawnshop/internal/repository/pawn"
	grpcserver "github.com/Additional-Code/pawnshop/internal/server/grpc"
	httpserver "github.com/Additional-Code/pawnshop/internal/server/http"
	servicepawn "github.com/Additional-Code/pawnshop/internal/service/pawn"
	transporthttp "github.com/Additional-Code/pawnshop/internal/transport/http"
	"github.com/Additional-Code/pawnshop/internal/worker"
	workerpawn "github.com/Additional-Code/pawnshop/internal/worker/pawn"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositorypawn.Module,
)

// Registry restores the in-memory registry from the database. Only one
// process may run it against a database, since it is the single writer.
var Registry = fx.Options(
	Core,
	servicepawn.Module,
)

// HTTP wires the HTTP and gRPC servers, the deposit consumer and the overdue
// sweeper around the registry.
var HTTP = fx.Options(
	Registry,
	broadcast.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
	worker.Module,
	workerpawn.TransfersModule,
)

// Worker runs the event history projection. It does not load the registry.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpawn.ProjectionModule,
)

// Module is the default application wiring.
var Module = HTTP
