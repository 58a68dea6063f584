package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/pawnshop/internal/config"
)

// Message represents a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

//go:generate mockgen -source=messaging.go -destination=mocks/client.go -package=mocks

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte) error
	// Consume blocks, feeding messages from topic to handler until ctx ends.
	Consume(ctx context.Context, topic string, handler Handler) error
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// noopClient is used when messaging is disabled.
type noopClient struct{}

func (noopClient) Publish(context.Context, string, []byte, []byte) error { return nil }
func (noopClient) Consume(ctx context.Context, _ string, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

// kafkaClient implements the Client via kafka-go. One writer serves every
// topic; each Consume call joins the consumer group with its own reader.
type kafkaClient struct {
	writer *kafka.Writer
	cfg    config.Config
	logger *zap.Logger

	mu      sync.Mutex
	readers map[*kafka.Reader]struct{}
}

func (k *kafkaClient) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	if topic == "" {
		return errors.New("publish: topic is required")
	}
	var headers headerCarrier
	otel.GetTextMapPropagator().Inject(ctx, &headers)
	msg := kafka.Message{Topic: topic, Key: key, Value: value, Headers: headers}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *kafkaClient) newReader(topic string) *kafka.Reader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.Messaging.Kafka.Brokers,
		GroupID:        k.cfg.Messaging.ConsumerGroup,
		Topic:          topic,
		MinBytes:       k.cfg.Messaging.Kafka.MinBytes,
		MaxBytes:       k.cfg.Messaging.Kafka.MaxBytes,
		CommitInterval: k.cfg.Messaging.Kafka.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  k.cfg.Messaging.Kafka.ConnectTimeout,
			ClientID: k.cfg.Messaging.Kafka.ClientID,
		},
	})
	k.mu.Lock()
	k.readers[reader] = struct{}{}
	k.mu.Unlock()
	return reader
}

func (k *kafkaClient) closeReader(reader *kafka.Reader) error {
	k.mu.Lock()
	_, ok := k.readers[reader]
	delete(k.readers, reader)
	k.mu.Unlock()
	if !ok {
		return nil
	}
	return reader.Close()
}

func (k *kafkaClient) Consume(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errors.New("consume: topic is required")
	}
	reader := k.newReader(topic)
	defer func() {
		if err := k.closeReader(reader); err != nil {
			k.logger.Warn("close kafka reader", zap.String("topic", topic), zap.Error(err))
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.String("topic", topic), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		wrapped := Message{
			Topic:  msg.Topic,
			Key:    append([]byte(nil), msg.Key...),
			Value:  append([]byte(nil), msg.Value...),
			Offset: msg.Offset,
			Time:   msg.Time,
			Headers: func() map[string]string {
				if len(msg.Headers) == 0 {
					return nil
				}
				m := make(map[string]string, len(msg.Headers))
				for _, h := range msg.Headers {
					m[h.Key] = string(h.Value)
				}
				return m
			}(),
		}

		carrier := headerCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)
		if err := handler(msgCtx, wrapped); err != nil {
			// Left uncommitted; the group redelivers it after a rebalance or restart.
			k.logger.Error("message handler failed", zap.Error(err), zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset))
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")

		return noopClient{}, nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Messaging.Kafka.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger, level: zapcore.DebugLevel},
		ErrorLogger:  kafkaLogger{logger: logger, level: zapcore.WarnLevel},
	}

	client := &kafkaClient{
		writer:  writer,
		cfg:     cfg,
		logger:  logger,
		readers: make(map[*kafka.Reader]struct{}),
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")

			err := writer.Close()
			client.mu.Lock()
			readers := make([]*kafka.Reader, 0, len(client.readers))
			for r := range client.readers {
				readers = append(readers, r)
			}
			client.mu.Unlock()
			for _, r := range readers {
				err = errors.Join(err, client.closeReader(r))
			}
			return err
		},
	})

	return client, nil
}

// kafkaLogger adapts kafka-go's Printf logging onto zap.
type kafkaLogger struct {
	logger *zap.Logger
	level  zapcore.Level
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	if ce := k.logger.Check(k.level, fmt.Sprintf(msg, args...)); ce != nil {
		ce.Write(zap.String("component", "kafka"))
	}
}

// headerCarrier lets the otel propagator read and write kafka headers, so a
// consumer's spans join the trace that published the message.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}
