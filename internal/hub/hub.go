// Package hub serves tire messages to browsers: a websocket broadcast at /ws
// plus small REST endpoints for the latest message and bridge status.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

const (
	sendBuffer   = 16 // queued messages per subscriber before drops
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Hub broadcasts every published message to all websocket subscribers.
type Hub struct {
	clients  map[*subscriber]struct{}
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	metrics  *metrics.TransportMetrics
	wg       sync.WaitGroup
	closed   bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// NewHub returns an empty hub.
func NewHub(m *metrics.TransportMetrics) *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only feed, any dashboard origin may subscribe
			},
		},
		metrics: m,
	}
}

// Name implements publish.Named
func (h *Hub) Name() string { return "websocket" }

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements publish.Publisher. Subscribers whose queue is full
// miss the message instead of slowing the bridge down.
func (h *Hub) Publish(_ context.Context, msg *snapshot.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		select {
		case sub.send <- payload:
		default:
			h.metrics.IncrementHubDropped()
		}
	}
	return nil
}

// HandleWebSocket upgrades the request and registers the subscriber.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		getLogger().Debug("websocket upgrade failed", logger.Error(err))
		return nil // upgrader already wrote the error response
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer), addr: c.RealIP()}
	if !h.register(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		return conn.Close()
	}

	h.wg.Add(2)
	go h.writePump(sub)
	go h.readPump(sub)
	return nil
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[sub] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetHubClients(n)
	getLogger().Info("websocket subscriber connected",
		logger.String("remote", sub.addr),
		logger.Int("clients", n))
	return true
}

// unregister removes sub and closes its queue; it is safe to call twice.
func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[sub]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, sub)
	close(sub.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetHubClients(n)
	getLogger().Info("websocket subscriber disconnected",
		logger.String("remote", sub.addr),
		logger.Int("clients", n))
}

func (h *Hub) writePump(sub *subscriber) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unregister(sub)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(sub)
				return
			}
		}
	}
}

// readPump discards client frames and notices when the peer goes away.
func (h *Hub) readPump(sub *subscriber) {
	defer h.wg.Done()
	defer h.unregister(sub)

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every subscriber and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.unregister(sub)
	}
	h.wg.Wait()
}
