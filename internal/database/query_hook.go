package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var dbTracer = otel.Tracer("github.com/Additional-Code/pawnshop/database")

// queryHook traces every statement and logs the ones slower than threshold.
type queryHook struct {
	role      string
	threshold time.Duration
	logger    *zap.Logger
}

var _ bun.QueryHook = (*queryHook)(nil)

func newQueryHook(role string, threshold time.Duration, logger *zap.Logger) *queryHook {
	return &queryHook{role: role, threshold: threshold, logger: logger}
}

func (h *queryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	ctx, _ = dbTracer.Start(ctx, "db."+event.Operation(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.role", h.role),
			attribute.String("db.operation", event.Operation()),
		),
	)
	return ctx
}

func (h *queryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	failed := event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows)
	if failed {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
	}

	elapsed := time.Since(event.StartTime)
	switch {
	case failed:
		h.logger.Warn("query failed",
			zap.String("role", h.role),
			zap.String("operation", event.Operation()),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
	case h.threshold > 0 && elapsed >= h.threshold:
		h.logger.Warn("slow query",
			zap.String("role", h.role),
			zap.String("operation", event.Operation()),
			zap.Duration("elapsed", elapsed),
			zap.String("query", event.Query),
		)
	}
}
