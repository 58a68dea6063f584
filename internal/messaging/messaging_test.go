package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/pawnshop/internal/config"
)

func TestHeaderCarrierRoundTripsTraceContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	carrier := headerCarrier{{Key: "event-type", Value: []byte("order.created")}}
	prop.Inject(ctx, &carrier)

	assert.Equal(t, "order.created", carrier.Get("event-type"))
	assert.Contains(t, carrier.Keys(), "traceparent")

	headers := []kafka.Header(carrier)
	received := headerCarrier(headers)
	got := trace.SpanContextFromContext(prop.Extract(context.Background(), &received))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}

func TestHeaderCarrierSetReplaces(t *testing.T) {
	var c headerCarrier
	c.Set("k", "1")
	c.Set("k", "2")
	assert.Len(t, c, 1)
	assert.Equal(t, "2", c.Get("k"))
	assert.Empty(t, c.Get("missing"))
}

func TestKafkaLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	kafkaLogger{logger: l, level: zapcore.DebugLevel}.Printf("joined group %s", "pawnshop-worker")
	kafkaLogger{logger: l, level: zapcore.WarnLevel}.Printf("broker %d unreachable", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broker 3 unreachable", entries[0].Message)
	assert.Equal(t, "kafka", entries[0].ContextMap()["component"])
}

func TestNoopClientWhenDisabled(t *testing.T) {
	client, err := NewClient(fxtest.NewLifecycle(t), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, client.Publish(context.Background(), "pawn.events", nil, []byte("{}")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Consume(ctx, "pawn.transfers", nil), context.DeadlineExceeded)
}
