// Package ws implements the WebSocket adapter that streams workflow and
// human queue events to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Feature string          `json:"feature,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// conn is one subscriber. Messages are queued on send and written by the
// connection's own goroutine; a subscriber whose queue fills is dropped.
type conn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	send    chan []byte
	feature string
	prefix  []string
}

func (c *conn) wants(msg *Message) bool {
	if c.feature != "" && msg.Feature != "" && c.feature != msg.Feature {
		return false
	}
	if len(c.prefix) == 0 {
		return true
	}
	for _, p := range c.prefix {
		if strings.HasPrefix(msg.Type, p) {
			return true
		}
	}
	return false
}

// Hub fans events out to all subscribers.
type Hub struct {
	mu    sync.Mutex
	conns map[*conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*conn]struct{})}
}

// HandleWS upgrades the request to a WebSocket. Query parameters narrow the
// subscription: "feature" to one feature, "types" to a comma separated list
// of event type prefixes such as "queue.".
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:      ws,
		cancel:  cancel,
		send:    make(chan []byte, sendBuffer),
		feature: r.URL.Query().Get("feature"),
	}
	if types := r.URL.Query().Get("types"); types != "" {
		for _, p := range strings.Split(types, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.prefix = append(c.prefix, p)
			}
		}
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("websocket connected", "remote", r.RemoteAddr, "feature", c.feature, "types", c.prefix)

	go h.writeLoop(ctx, c)
	// Reads only detect disconnects; clients send nothing.
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writeLoop(ctx context.Context, c *conn) {
	defer func() { _ = c.ws.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				h.remove(c)
				return
			}
		}
	}
}

// Broadcast queues a message for every subscriber that wants it. It never
// blocks on a slow client.
func (h *Hub) Broadcast(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if !c.wants(&msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("websocket subscriber too slow, disconnecting", "feature", c.feature)
			c.cancel()
			delete(h.conns, c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.cancel()
		delete(h.conns, c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "feature", c.feature)
	}
}
