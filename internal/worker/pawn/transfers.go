package pawn

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/messaging"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
	"github.com/Additional-Code/pawnshop/internal/worker"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/pawnshop/worker/pawn")

// Transfer is an inbound transfer into an escrow handle. Amount is in base units.
type Transfer struct {
	TransferID string        `json:"transfer_id"`
	Address    string        `json:"address"`
	From       string        `json:"from"`
	Amount     domain.Amount `json:"amount"`
}

// Depositor applies transfers to escrows.
type Depositor interface {
	Deposit(ctx context.Context, in service.DepositInput) (domain.Escrow, error)
}

// NewTransferHandler consumes the transfers topic as the external deposit
// channel. Rejected and duplicate transfers are committed; only internal
// failures are left for redelivery.
func NewTransferHandler(svc *service.Service, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return transferRegistration(svc, logger, cfg.Messaging.Kafka.TransfersTopic)
}

func transferRegistration(svc Depositor, logger *zap.Logger, topic string) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.transfers.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var t Transfer
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			logger.Error("failed to decode transfer", zap.Error(err), zap.ByteString("key", msg.Key))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if t.TransferID == "" {
			t.TransferID = string(msg.Key)
		}
		span.SetAttributes(attribute.String("transfer.id", t.TransferID))

		escrow, err := svc.Deposit(ctx, service.DepositInput{
			TransferID: t.TransferID,
			Address:    t.Address,
			From:       t.From,
			Amount:     t.Amount,
		})
		switch {
		case err == nil:
			logger.Info("transfer applied",
				zap.String("transfer_id", t.TransferID),
				zap.Uint64("order_id", escrow.OrderID),
				zap.String("status", string(escrow.Status)),
			)
			return nil
		case errors.Is(err, service.ErrDuplicateTransfer):
			return nil
		case errorbank.Is(err, errorbank.KindInternal):
			span.RecordError(err)
			span.SetStatus(codes.Error, "deposit failed")
			return err
		default:
			logger.Warn("transfer rejected",
				zap.String("transfer_id", t.TransferID),
				zap.String("address", t.Address),
				zap.Error(err),
			)
			return nil
		}
	}

	return worker.HandlerRegistration{
		Topic:   topic,
		Handler: handler,
	}
}
