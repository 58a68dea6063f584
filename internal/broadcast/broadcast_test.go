package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/config"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
)

type fakePublisher struct {
	channel string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, data []byte) error {
	f.channel = channel
	f.data = data
	return f.err
}

func TestSinkPublishesEventJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "pawn:events")
	event := domain.NewEvent(domain.EventOrderCompleted, 5, domain.StatusCompleted, domain.NewAmount(15), time.Now().UTC())

	require.NoError(t, sink.Deliver(context.Background(), event))

	assert.Equal(t, "pawn:events", pub.channel)
	var got domain.Event
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, domain.EventOrderCompleted, got.Type)
}

func TestSinkWrapsPublishError(t *testing.T) {
	sink := NewSink(&fakePublisher{err: errors.New("503")}, "pawn:events")

	err := sink.Deliver(context.Background(), domain.Event{ID: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pawn:events")
}

func TestNewDisabledReturnsNil(t *testing.T) {
	assert.Nil(t, New(config.Config{}, zap.NewNop()))

	sink := New(config.Config{Broadcast: config.Broadcast{Enabled: true, Addr: "http://localhost:8000/api", Channel: "c"}}, zap.NewNop())
	require.NotNil(t, sink)
	assert.Equal(t, "centrifugo", sink.Name())
}
