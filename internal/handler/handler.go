package handler

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"batepapo/internal/chat"
	"batepapo/internal/config"
)

// maxBodyBytes caps request bodies at 1MB
const maxBodyBytes = 1 << 20

// userHeader carries the sender identity
const userHeader = "User"

// Handler holds application dependencies
type Handler struct {
	Room     *chat.Room
	Hub      *Hub
	Config   config.Config
	Log      *zap.Logger
	Gatherer prometheus.Gatherer
}

// New creates a new Handler with the given dependencies
func New(room *chat.Room, hub *Hub, cfg config.Config, log *zap.Logger, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		Room:     room,
		Hub:      hub,
		Config:   cfg,
		Log:      log,
		Gatherer: gatherer,
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// 参加者
	r.HandleFunc("/participants", h.GetParticipants).Methods("GET")
	r.HandleFunc("/participants", h.CreateParticipant).Methods("POST")
	r.HandleFunc("/participants", h.DeleteParticipants).Methods("DELETE")
	r.HandleFunc("/participants/{name}", h.DeleteParticipant).Methods("DELETE")

	// メッセージ
	r.HandleFunc("/messages", h.GetMessages).Methods("GET")
	r.HandleFunc("/messages", h.CreateMessage).Methods("POST")
	r.HandleFunc("/messages", h.DeleteMessages).Methods("DELETE")

	// ハートビート
	r.HandleFunc("/status", h.PostStatus).Methods("POST")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return r
}
