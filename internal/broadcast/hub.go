package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 5 * time.Second

// Frame is the envelope relayed to websocket clients
type Frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Hub relays broadcast events to connected websocket clients. It
// subscribes to the Redis channels the core publishes on, so every
// server instance relays events regardless of which instance produced
// them.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	client *redis.Client
}

// NewHub creates a hub on the given Redis client
func NewHub(client *redis.Client) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		client: client,
	}
}

// Run subscribes to broadcast topics and fans incoming events out to
// clients until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.client.Subscribe(ctx, TopicNewDay, TopicRankChange)
	defer pubsub.Close()

	slog.Info("broadcast hub started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("broadcast hub stopped")
			h.closeAll()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut(Frame{
				Topic:   msg.Channel,
				Payload: json.RawMessage(msg.Payload),
			})
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered
// until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()

	slog.Debug("live client connected", "clients", count)

	// Read loop exists only to observe the close; clients never send
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) fanOut(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to marshal hub frame", "topic", frame.Topic, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("dropping slow live client", "error", err)
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}
