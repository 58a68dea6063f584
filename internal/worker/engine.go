package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/messaging"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/pawnshop/worker")

const maxBackoff = 30 * time.Second

// HandlerRegistration binds a topic to its handler.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs one consumer loop per topic and worker slot. A failing message
// is retried in place up to the configured attempts before it is left
// uncommitted.
type Engine struct {
	client        messaging.Client
	logger        *zap.Logger
	workers       config.Worker
	enabled       bool
	registrations map[string]messaging.Handler

	cancel context.CancelFunc
	group  *errgroup.Group
	sleep  func(context.Context, time.Duration) bool
}

func NewEngine(p Params) *Engine {
	reg := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		if _, dup := reg[r.Topic]; dup {
			p.Logger.Warn("duplicate handler registration ignored", zap.String("topic", r.Topic))
			continue
		}
		reg[r.Topic] = r.Handler
	}

	return &Engine{
		client:        p.Client,
		logger:        p.Logger,
		workers:       p.Config.Messaging.Workers,
		enabled:       p.Config.Messaging.Enabled && p.Config.Messaging.Workers.Enabled,
		registrations: reg,
		sleep:         sleepCtx,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	if !e.enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}
	if len(e.registrations) == 0 {
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	concurrency := max(e.workers.Concurrency, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group = &errgroup.Group{}

	for topic, handler := range e.registrations {
		for slot := 0; slot < concurrency; slot++ {
			e.group.Go(func() error {
				e.consumeLoop(runCtx, topic, e.wrap(topic, slot, handler))
				return nil
			})
		}
	}

	e.logger.Info("worker engine started",
		zap.Int("topics", len(e.registrations)),
		zap.Int("workers_per_topic", concurrency),
		zap.Int("max_attempts", e.workers.MaxAttempts),
	)
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// wrap traces each message and retries the handler with linear backoff.
// A panicking handler counts as a failed attempt.
func (e *Engine) wrap(topic string, slot int, handler messaging.Handler) messaging.Handler {
	attempts := max(e.workers.MaxAttempts, 1)
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.handle "+topic, trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.destination", topic),
				attribute.String("messaging.message.key", string(msg.Key)),
				attribute.Int64("messaging.offset", msg.Offset),
				attribute.Int("worker.slot", slot),
			))
		defer span.End()

		var err error
		for attempt := 1; attempt <= attempts; attempt++ {
			if err = safeCall(ctx, handler, msg); err == nil {
				return nil
			}
			e.logger.Warn("message handler failed",
				zap.String("topic", topic),
				zap.ByteString("key", msg.Key),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt < attempts && !e.sleep(ctx, time.Duration(attempt)*e.workers.PollInterval) {
				break
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

func safeCall(ctx context.Context, handler messaging.Handler, msg messaging.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func (e *Engine) consumeLoop(ctx context.Context, topic string, handler messaging.Handler) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, topic, handler)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.String("topic", topic), zap.Error(err))
		if !e.sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
