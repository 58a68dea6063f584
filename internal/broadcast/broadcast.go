// Package broadcast relays committed pawn events to a Centrifugo channel.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/centrifugal/gocent"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
)

// Module adds the Centrifugo sink to the pawn event sinks when enabled.
var Module = fx.Provide(
	fx.Annotate(
		New,
		fx.ResultTags(`group:"pawn.sinks"`),
	),
)

// Publisher is the part of the Centrifugo client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte) error
}

// Sink publishes each event as JSON on one channel.
type Sink struct {
	client  Publisher
	channel string
}

// New returns the sink, or nil when broadcasting is disabled.
func New(cfg config.Config, logger *zap.Logger) service.EventSink {
	if !cfg.Broadcast.Enabled {
		return nil
	}
	client := gocent.New(gocent.Config{
		Addr: cfg.Broadcast.Addr,
		Key:  cfg.Broadcast.Key,
	})
	logger.Info("centrifugo broadcast enabled",
		zap.String("addr", cfg.Broadcast.Addr),
		zap.String("channel", cfg.Broadcast.Channel),
	)
	return NewSink(client, cfg.Broadcast.Channel)
}

func NewSink(client Publisher, channel string) *Sink {
	return &Sink{client: client, channel: channel}
}

func (s *Sink) Name() string { return "centrifugo" }

func (s *Sink) Deliver(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("centrifugo publish %s: %w", s.channel, err)
	}
	return nil
}
