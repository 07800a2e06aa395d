package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"batepapo/internal/chat"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps core errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case chat.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chat.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrUnknownSender), errors.Is(err, chat.ErrUnknownRecipient):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrStorageTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, chat.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError logs err under route and writes the matching response
func (h *Handler) writeError(w http.ResponseWriter, route string, err error) {
	status := statusFor(err)

	var verr *chat.ValidationError
	if errors.As(err, &verr) {
		h.Log.Info(route+" ❌ Validation failed", zap.Any("details", verr.Fields))
		writeJSON(w, status, map[string]any{"details": verr.Fields})
		return
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error(route+" ❌ Storage error", zap.Error(err))
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	h.Log.Info(route+" ❌ Rejected", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": errorText(err)})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrDuplicateName):
		return chat.ErrDuplicateName.Error()
	case errors.Is(err, chat.ErrNotFound):
		return chat.ErrNotFound.Error()
	case errors.Is(err, chat.ErrUnknownSender):
		return chat.ErrUnknownSender.Error()
	case errors.Is(err, chat.ErrUnknownRecipient):
		return chat.ErrUnknownRecipient.Error()
	}
	return err.Error()
}
