// Package ws streams committed pawn events to websocket subscribers.
package ws

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	"github.com/Additional-Code/pawnshop/internal/presentation/http/response"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
	pongWait         = 2 * pingPeriod
)

// Hub fans events out to connected clients. A client that cannot keep up is
// disconnected rather than slowing delivery for everyone else.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	orderID uint64
	send    chan domain.Event
}

// NewHub constructs an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Deliver queues event for every matching subscriber without blocking.
func (h *Hub) Deliver(_ context.Context, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.orderID != 0 && sub.orderID != event.OrderID {
			continue
		}
		select {
		case sub.send <- event:
		default:
			h.logger.Warn("websocket subscriber too slow; dropping", zap.Uint64("order_filter", sub.orderID))
			h.removeLocked(sub)
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(orderID uint64) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{orderID: orderID, send: make(chan domain.Event, subscriberBuffer)}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}

// Handle upgrades the request and streams events as JSON text frames.
// The optional order_id query parameter limits the stream to one order.
func (h *Hub) Handle(c echo.Context) error {
	var orderID uint64
	if raw := c.QueryParam("order_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return response.New(c).WithError(errorbank.InvalidInput("invalid order_id", errorbank.WithCause(err))).Build()
		}
		orderID = id
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	sub, ok := h.add(orderID)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}

	go h.readPump(conn, sub)
	h.writePump(conn, sub)
	return nil
}

// readPump drains client frames so control messages are processed and a
// closed connection is noticed.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer h.remove(sub)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
