package pawn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/messaging"
	"github.com/Additional-Code/pawnshop/internal/observability"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
)

// EventSink receives committed events in commit order.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event domain.Event) error
}

// dispatcher decouples sinks from the registry lock. Enqueue never blocks;
// a single goroutine delivers to every sink in order.
type dispatcher struct {
	sinks   []EventSink
	logger  *zap.Logger
	metrics *observability.PawnMetrics

	mu     sync.Mutex
	queue  []domain.Event
	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

func newDispatcher(sinks []EventSink, logger *zap.Logger, metrics *observability.PawnMetrics) *dispatcher {
	return &dispatcher{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		signal:  make(chan struct{}, 1),
	}
}

func (d *dispatcher) enqueue(events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		for {
			d.flush(ctx)
			select {
			case <-d.quit:
				d.flush(ctx)
				return
			case <-d.signal:
			}
		}
	}()
}

// stop drains the queue, abandoning in-flight deliveries once ctx ends.
func (d *dispatcher) stop(ctx context.Context) {
	if d.quit == nil {
		return
	}
	close(d.quit)
	select {
	case <-d.done:
	case <-ctx.Done():
		d.cancel()
		<-d.done
	}
	d.cancel()
}

func (d *dispatcher) flush(ctx context.Context) {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			for _, sink := range d.sinks {
				err := sink.Deliver(ctx, event)
				d.metrics.RecordPublish(ctx, sink.Name(), err)
				if err != nil {
					d.logger.Error("event delivery failed",
						zap.String("sink", sink.Name()),
						zap.String("event_id", event.ID),
						zap.String("type", string(event.Type)),
						zap.Uint64("order_id", event.OrderID),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// kafkaSink publishes events as JSON keyed by order so each order's events
// stay on one partition.
type kafkaSink struct {
	client messaging.Client
	topic  string
}

func newKafkaSink(client messaging.Client, topic string) *kafkaSink {
	return &kafkaSink{client: client, topic: topic}
}

func (k *kafkaSink) Name() string { return "kafka" }

func (k *kafkaSink) Deliver(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return k.client.Publish(ctx, k.topic, EventKey(event), payload)
}

// EventKey is the message key for event: order-<id>, or pool for pool events.
func EventKey(event domain.Event) []byte {
	if event.OrderID == 0 {
		return []byte("pool")
	}
	return []byte(fmt.Sprintf("order-%d", event.OrderID))
}
