package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"batepapo/internal/chat"
	"batepapo/internal/model"
)

// CreateMessage handles POST /messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	const route = "[POST /messages]"
	h.Log.Debug(route+" Request received", zap.String("remote", r.RemoteAddr))

	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, route, err)
		return
	}
	req.User = r.Header.Get(userHeader)
	if err := Validate(req); err != nil {
		h.writeError(w, route, err)
		return
	}

	msg, err := h.Room.Messages.Append(r.Context(), model.Message{
		From: req.User,
		To:   req.To,
		Text: req.Text,
		Kind: model.Kind(req.Type),
	})
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Info(route+" ✅ Created message",
		zap.String("id", msg.ID.String()),
		zap.String("from", msg.From),
		zap.String("type", string(msg.Kind)))
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /messages. An optional ?limit=N returns only the
// last N messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /messages]"

	var (
		messages []model.Message
		err      error
	)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil {
			h.writeError(w, route, &chat.ValidationError{Fields: []chat.FieldError{{Field: "limit", Message: "must be a positive integer"}}})
			return
		}
		messages, err = h.Room.Messages.Recent(r.Context(), limit)
	} else {
		messages, err = h.Room.Messages.List(r.Context())
	}
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Debug(route+" ✅ Returned messages", zap.Int("count", len(messages)))
	writeJSON(w, http.StatusOK, messages)
}

// DeleteMessages handles DELETE /messages
func (h *Handler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	const route = "[DELETE /messages]"
	if err := h.Room.Messages.ClearAll(r.Context()); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Info(route + " ✅ Cleared messages")
	w.WriteHeader(http.StatusOK)
}
