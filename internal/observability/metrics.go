package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Additional-Code/pawnshop/internal/pawn"
)

const pawnMeterName = "github.com/Additional-Code/pawnshop/pawn"

// PawnMetrics records registry activity. A nil *PawnMetrics is a no-op.
type PawnMetrics struct {
	meter         metric.Meter
	ordersCreated metric.Int64Counter
	events        metric.Int64Counter
	movements     metric.Int64Counter
	published     metric.Int64Counter
	publishErrors metric.Int64Counter
	registration  metric.Registration
}

// NewPawnMetrics creates the domain instruments on the manager's meter.
func NewPawnMetrics(mgr *Manager) (*PawnMetrics, error) {
	meter := mgr.Meter(pawnMeterName)

	var (
		m   = PawnMetrics{meter: meter}
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("pawn.orders.created",
		metric.WithDescription("Orders created")); err != nil {
		return nil, err
	}
	if m.events, err = meter.Int64Counter("pawn.events",
		metric.WithDescription("Committed lifecycle and fund events by type")); err != nil {
		return nil, err
	}
	if m.movements, err = meter.Int64Counter("pawn.ledger.movements",
		metric.WithDescription("Ledger movements by kind")); err != nil {
		return nil, err
	}
	if m.published, err = meter.Int64Counter("pawn.events.published",
		metric.WithDescription("Events handed to sinks")); err != nil {
		return nil, err
	}
	if m.publishErrors, err = meter.Int64Counter("pawn.events.publish_errors",
		metric.WithDescription("Events a sink failed to deliver")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordChangeset counts what one committed changeset carried.
func (m *PawnMetrics) RecordChangeset(ctx context.Context, cs pawn.Changeset) {
	if m == nil {
		return
	}
	for _, e := range cs.Events {
		if e.Type == pawn.EventOrderCreated {
			m.ordersCreated.Add(ctx, 1)
		}
		m.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", string(e.Type)),
			attribute.String("order.status", string(e.Status)),
		))
	}
	for _, mv := range cs.Movements {
		m.movements.Add(ctx, 1, metric.WithAttributes(attribute.String("movement.kind", string(mv.Kind))))
	}
}

// RecordPublish counts one sink delivery attempt.
func (m *PawnMetrics) RecordPublish(ctx context.Context, sink string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("sink", sink))
	if err != nil {
		m.publishErrors.Add(ctx, 1, attrs)
		return
	}
	m.published.Add(ctx, 1, attrs)
}

// ObservePool registers a gauge reporting the pool balance in whole units.
func (m *PawnMetrics) ObservePool(balance func() float64) error {
	if m == nil || balance == nil {
		return nil
	}
	gauge, err := m.meter.Float64ObservableGauge("pawn.pool.balance",
		metric.WithDescription("Business pool balance in whole units"))
	if err != nil {
		return err
	}
	m.registration, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(gauge, balance())
		return nil
	}, gauge)
	return err
}

// Close unregisters the pool gauge callback.
func (m *PawnMetrics) Close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
