package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"batepapo/internal/chat"
	"batepapo/internal/clock"
	"batepapo/internal/config"
	"batepapo/internal/model"
	"batepapo/internal/storage"
	"batepapo/internal/storage/badgerstore"
	"batepapo/internal/storage/memory"
)

const testOrigin = "http://localhost:8080"

type testEnv struct {
	h     *Handler
	clock *clock.Fake
	reg   *prometheus.Registry
}

// newTestHandler テスト用のHandlerを生成
func newTestHandler(t *testing.T) testEnv {
	t.Helper()
	return newTestHandlerWithStore(t, memory.New())
}

func newTestHandlerWithStore(t *testing.T, store storage.Store) testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	fake := clock.NewFake(time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC))
	hub := NewHub(log)
	room := chat.NewRoom(store, chat.Options{
		Clock:     fake,
		Logger:    log,
		Metrics:   chat.NewMetrics(reg),
		Publisher: hub,
	})
	cfg := config.Config{AllowedOrigins: []string{testOrigin, "http://127.0.0.1:8080"}}
	return testEnv{h: New(room, hub, cfg, log, reg), clock: fake, reg: reg}
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, h http.Handler, name string) {
	t.Helper()
	w := do(t, h, "POST", "/participants", "", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateParticipant_Success(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()

	register(t, router, "Alice")

	w := do(t, router, "GET", "/participants", "", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("application/json", w.Header().Get("Content-Type"))
	participants := decodeBody[[]model.Participant](t, w)
	req.Len(participants, 1)
	req.Equal("Alice", participants[0].Name)
}

func TestCreateParticipant_Duplicate(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	w := do(t, router, "POST", "/participants", "", map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateParticipant_Validation(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	tests := map[string]any{
		"empty name":   map[string]string{"name": ""},
		"blank name":   map[string]string{"name": "   "},
		"missing name": map[string]string{},
		"invalid json": "{not json",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(t, router, "POST", "/participants", "", body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			resp := decodeBody[struct {
				Details []chat.FieldError `json:"details"`
			}](t, w)
			require.NotEmpty(t, resp.Details)
		})
	}
}

func TestCreateParticipant_OversizedBody(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	huge := `{"name":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`

	w := do(t, router, "POST", "/participants", "", huge)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateParticipant_NameTooLong(t *testing.T) {
	req := require.New(t)
	store, err := badgerstore.Open(t.TempDir())
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })
	router := newTestHandlerWithStore(t, store).h.SetupRouter()

	for _, name := range []string{strings.Repeat("a", 256), strings.Repeat("a", 70000)} {
		w := do(t, router, "POST", "/participants", "", map[string]string{"name": name})
		req.Equal(http.StatusUnprocessableEntity, w.Code, w.Body.String())
		resp := decodeBody[struct {
			Details []chat.FieldError `json:"details"`
		}](t, w)
		req.Equal([]chat.FieldError{{Field: "name", Message: "must be at most 255 characters"}}, resp.Details)
	}

	register(t, router, strings.Repeat("a", 255))
}

func TestCreateMessage_RecipientTooLong(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	w := do(t, router, "POST", "/messages", "Alice", map[string]string{
		"to": strings.Repeat("b", 256), "text": "oi", "type": "message",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestGetParticipants_Empty(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	w := do(t, router, "GET", "/participants", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestCreateMessage_Success(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	w := do(t, router, "POST", "/messages", "Alice", map[string]string{
		"to": "Todos", "text": "oi, gente", "type": "message",
	})
	req.Equal(http.StatusCreated, w.Code, w.Body.String())

	msg := decodeBody[model.Message](t, w)
	req.Equal("Alice", msg.From)
	req.Equal(model.Broadcast, msg.To)
	req.Equal("oi, gente", msg.Text)
	req.Equal(model.KindMessage, msg.Kind)
	req.Equal("18:30:00", msg.Time)

	w = do(t, router, "GET", "/messages", "", nil)
	req.Equal(http.StatusOK, w.Code)
	messages := decodeBody[[]model.Message](t, w)
	req.Len(messages, 2)
	req.Equal(model.KindStatus, messages[0].Kind)
	req.Equal(msg, messages[1])
}

func TestCreateMessage_UnknownSender(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	w := do(t, router, "POST", "/messages", "Ghost", map[string]string{
		"to": "Todos", "text": "boo", "type": "message",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMessage_UnknownRecipient(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")
	w := do(t, router, "POST", "/messages", "Alice", map[string]string{
		"to": "Ghost", "text": "psst", "type": "private_message",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMessage_Validation(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	tests := []struct {
		name  string
		user  string
		body  map[string]string
		field string
	}{
		{"missing user", "", map[string]string{"to": "Todos", "text": "oi", "type": "message"}, "user"},
		{"empty text", "Alice", map[string]string{"to": "Todos", "text": " ", "type": "message"}, "text"},
		{"empty to", "Alice", map[string]string{"to": "", "text": "oi", "type": "message"}, "to"},
		{"bad type", "Alice", map[string]string{"to": "Todos", "text": "oi", "type": "status"}, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/messages", tt.user, tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			resp := decodeBody[struct {
				Details []chat.FieldError `json:"details"`
			}](t, w)
			require.Equal(t, tt.field, resp.Details[0].Field)
		})
	}
}

func TestGetMessages_Limit(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")
	for _, text := range []string{"um", "dois"} {
		w := do(t, router, "POST", "/messages", "Alice", map[string]string{"to": "Todos", "text": text, "type": "message"})
		req.Equal(http.StatusCreated, w.Code)
	}

	w := do(t, router, "GET", "/messages?limit=1", "", nil)
	req.Equal(http.StatusOK, w.Code)
	messages := decodeBody[[]model.Message](t, w)
	req.Len(messages, 1)
	req.Equal("dois", messages[0].Text)

	for _, bad := range []string{"0", "-1", "abc"} {
		w = do(t, router, "GET", "/messages?limit="+bad, "", nil)
		req.Equal(http.StatusUnprocessableEntity, w.Code, bad)
	}
}

func TestPostStatus(t *testing.T) {
	req := require.New(t)
	env := newTestHandler(t)
	router := env.h.SetupRouter()
	register(t, router, "Alice")

	env.clock.Advance(5 * time.Second)
	w := do(t, router, "POST", "/status", "Alice", nil)
	req.Equal(http.StatusOK, w.Code)

	p, err := env.h.Room.Participants.Get(context.Background(), "Alice")
	req.NoError(err)
	req.True(p.LastHeartbeat.Equal(env.clock.Now()))

	w = do(t, router, "POST", "/status", "Ghost", nil)
	req.Equal(http.StatusNotFound, w.Code)

	w = do(t, router, "POST", "/status", "", nil)
	req.Equal(http.StatusNotFound, w.Code)
}

func TestDeleteParticipant(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	w := do(t, router, "DELETE", "/participants/Alice", "", nil)
	req.Equal(http.StatusOK, w.Code)

	w = do(t, router, "DELETE", "/participants/Alice", "", nil)
	req.Equal(http.StatusNotFound, w.Code)

	w = do(t, router, "GET", "/messages", "", nil)
	messages := decodeBody[[]model.Message](t, w)
	req.Equal(chat.LeaveText, messages[len(messages)-1].Text)
}

func TestDeleteAll(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	req.Equal(http.StatusOK, do(t, router, "DELETE", "/messages", "", nil).Code)
	req.JSONEq("[]", do(t, router, "GET", "/messages", "", nil).Body.String())

	req.Equal(http.StatusOK, do(t, router, "DELETE", "/participants", "", nil).Code)
	req.JSONEq("[]", do(t, router, "GET", "/participants", "", nil).Body.String())
	req.JSONEq("[]", do(t, router, "GET", "/messages", "", nil).Body.String(), "clearing participants is silent")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestHandler(t).h.SetupRouter()
	register(t, router, "Alice")

	w := do(t, router, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "batepapo_registrations_total 1")
}

func TestStatusForStorageErrors(t *testing.T) {
	require.Equal(t, http.StatusGatewayTimeout, statusFor(chat.ErrStorageTimeout))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(chat.ErrStorageUnavailable))
	require.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func TestConcurrentParticipantCreation(t *testing.T) {
	req := require.New(t)
	router := newTestHandler(t).h.SetupRouter()
	names := []string{"Ana", "Bia", "Caio", "Duda", "Enzo", "Fábio", "Gabi", "Hugo"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			do(t, router, "POST", "/participants", "", map[string]string{"name": name})
		}(name)
	}
	wg.Wait()

	participants := decodeBody[[]model.Participant](t, do(t, router, "GET", "/participants", "", nil))
	req.Len(participants, len(names))
}

func TestWebSocketReceivesMessages(t *testing.T) {
	req := require.New(t)
	env := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.h.Hub.Run(ctx)
	// the connection goroutine outlives the test once hijacked
	env.h.Log = zap.NewNop()

	server := httptest.NewServer(env.h.SetupRouter())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Origin", testOrigin)
	ws, _, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	req.NoError(err)
	defer ws.Close()

	req.Eventually(func() bool { return env.h.Hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	register(t, env.h.SetupRouter(), "Alice")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event model.Event
	req.NoError(ws.ReadJSON(&event))
	req.Equal("message_created", event.Type)
	req.Equal("Alice", event.Message.From)
	req.Equal(chat.JoinText, event.Message.Text)
}

func TestWebSocketOriginCheck(t *testing.T) {
	env := newTestHandler(t)
	env.h.Log = zap.NewNop()
	server := httptest.NewServer(env.h.SetupRouter())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, _, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	require.Error(t, err)
}
