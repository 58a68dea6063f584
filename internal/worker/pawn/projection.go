package pawn

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/messaging"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	repo "github.com/Additional-Code/pawnshop/internal/repository/pawn"
	"github.com/Additional-Code/pawnshop/internal/worker"
)

// EventRecorder stores events in the history projection.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e domain.Event) error
}

// NewProjectionHandler copies published events into the history table.
func NewProjectionHandler(r *repo.Repository, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return projectionRegistration(r, logger, cfg.Messaging.Kafka.Topic)
}

func projectionRegistration(store EventRecorder, logger *zap.Logger, topic string) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.events.project", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if event.ID == "" {
			logger.Warn("event without id skipped", zap.String("type", string(event.Type)))
			return nil
		}

		if err := store.RecordEvent(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record failed")
			return err
		}
		logger.Debug("event projected",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Uint64("order_id", event.OrderID),
		)
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   topic,
		Handler: handler,
	}
}
