package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/pawn"
)

func metricsConfig(exporter string) config.Config {
	return config.Config{
		Observability: config.Observability{
			ServiceName:     "pawnshop-test",
			ServiceVersion:  "test",
			Environment:     "test",
			EnableMetrics:   true,
			MetricsExporter: exporter,
			PrometheusPath:  "/metrics",
		},
		Pawn: config.Pawn{Settlement: "refund", Decimals: 18},
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusExportsPawnMeters(t *testing.T) {
	mgr, err := newManager(context.Background(), metricsConfig("prometheus"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	require.True(t, mgr.MetricsEnabled())
	assert.False(t, mgr.TracingEnabled())
	require.NotNil(t, mgr.MetricsHandler())

	metrics, err := NewPawnMetrics(mgr)
	require.NoError(t, err)
	require.NoError(t, metrics.ObservePool(func() float64 { return 12.5 }))
	t.Cleanup(func() { _ = metrics.Close() })

	metrics.RecordChangeset(context.Background(), pawn.Changeset{
		Events: []pawn.Event{
			{Type: pawn.EventOrderCreated, Status: pawn.StatusPending},
			{Type: pawn.EventOrderDeposit, Status: pawn.StatusAccepted},
		},
		Movements: []pawn.Movement{{Kind: pawn.MovementDeposit}},
	})
	metrics.RecordPublish(context.Background(), "kafka", nil)

	body := scrape(t, mgr.MetricsHandler())
	assert.Contains(t, body, "pawn_orders_created")
	assert.Contains(t, body, `event_type="order.deposit"`)
	assert.Contains(t, body, "pawn_ledger_movements")
	assert.Contains(t, body, "pawn_pool_balance")
	assert.Contains(t, body, "12.5")
	assert.Contains(t, body, "go_goroutines")
}

func TestUnsupportedExporterDisablesMetrics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mgr, err := newManager(context.Background(), metricsConfig("statsd"), zap.New(core))
	require.NoError(t, err)

	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
	assert.Equal(t, 1, logs.FilterMessage("unsupported metrics exporter; metrics disabled").Len())

	metrics, err := NewPawnMetrics(mgr)
	require.NoError(t, err)
	metrics.RecordChangeset(context.Background(), pawn.Changeset{})
}

func TestNilPawnMetricsIsNoop(t *testing.T) {
	var m *PawnMetrics
	m.RecordChangeset(context.Background(), pawn.Changeset{Events: []pawn.Event{{Type: pawn.EventOrderCreated}}})
	m.RecordPublish(context.Background(), "ws", assert.AnError)
	assert.NoError(t, m.ObservePool(func() float64 { return 1 }))
	assert.NoError(t, m.Close())
}
