package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"batepapo/internal/model"
)

// broadcastBuffer lets appends proceed while slow clients are written to
const broadcastBuffer = 100

// Hub fans appended messages out to websocket clients
type Hub struct {
	clients   map[*websocket.Conn]bool
	mu        sync.RWMutex
	broadcast chan model.Event
	log       *zap.Logger
}

// NewHub creates an empty hub; Run must be started to deliver events
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan model.Event, broadcastBuffer),
		log:       log,
	}
}

// Publish queues m for every client. It never blocks the caller; when the
// buffer is full the event is dropped.
func (h *Hub) Publish(m model.Message) {
	select {
	case h.broadcast <- model.Event{Type: "message_created", Message: m}:
	default:
		h.log.Warn("[WebSocket] Broadcast buffer full, dropping event", zap.String("id", m.ID.String()))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	return len(h.clients)
}

func (h *Hub) remove(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	return len(h.clients)
}

// Run broadcasts queued events until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event model.Event) {
	// clients マップをスナップショットしてからロックを外すことで、
	// range 中に delete して "concurrent map iteration and map write"
	// が発生するのを防ぐ
	h.mu.RLock()
	snapshot := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	for _, client := range snapshot {
		if err := client.WriteJSON(event); err != nil {
			client.Close()
			h.remove(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Info("[WebSocket] Upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	total := h.Hub.add(conn)
	h.Log.Info("[WebSocket] New connection", zap.Int("clients", total))

	// クライアントからのメッセージを受信（キープアライブ用）
	for {
		var msg interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			remaining := h.Hub.remove(conn)
			h.Log.Info("[WebSocket] Client disconnected", zap.Int("clients", remaining))
			break
		}
	}
}
