package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GetParticipants handles GET /participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	const route = "[GET /participants]"
	participants, err := h.Room.Participants.List(r.Context())
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Debug(route+" ✅ Returned participants", zap.Int("count", len(participants)))
	writeJSON(w, http.StatusOK, participants)
}

// CreateParticipant handles POST /participants
func (h *Handler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	const route = "[POST /participants]"
	h.Log.Debug(route+" Request received", zap.String("remote", r.RemoteAddr))

	var req ParticipantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, route, err)
		return
	}
	if err := Validate(req); err != nil {
		h.writeError(w, route, err)
		return
	}

	p, err := h.Room.Participants.Register(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Info(route+" ✅ Registered participant", zap.String("name", p.Name))
	w.WriteHeader(http.StatusCreated)
}

// DeleteParticipant handles DELETE /participants/{name}
func (h *Handler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	route := "[DELETE /participants/" + name + "]"

	if err := h.Room.Participants.Evict(r.Context(), name); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Info(route + " ✅ Removed participant")
	w.WriteHeader(http.StatusOK)
}

// DeleteParticipants handles DELETE /participants
func (h *Handler) DeleteParticipants(w http.ResponseWriter, r *http.Request) {
	const route = "[DELETE /participants]"
	if err := h.Room.Participants.ClearAll(r.Context()); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Info(route + " ✅ Cleared participants")
	w.WriteHeader(http.StatusOK)
}

// PostStatus handles POST /status
func (h *Handler) PostStatus(w http.ResponseWriter, r *http.Request) {
	const route = "[POST /status]"
	user := r.Header.Get(userHeader)

	if err := h.Room.Participants.Touch(r.Context(), user); err != nil {
		h.writeError(w, route, err)
		return
	}

	h.Log.Debug(route+" ✅ Heartbeat", zap.String("user", user))
	w.WriteHeader(http.StatusOK)
}
