package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/middleware"
	"github.com/capitalize-ai/booking-assistant/internal/model"
	"github.com/capitalize-ai/booking-assistant/internal/service"
	"github.com/capitalize-ai/booking-assistant/internal/session"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

const testSecret = "handler-secret"

// scriptedBackend answers by exact message text.
type scriptedBackend struct {
	replies map[string]*backend.Response
	gate    chan struct{}
	started chan struct{}
}

func (b *scriptedBackend) Send(ctx context.Context, req backend.Request) (*backend.Response, error) {
	if b.gate != nil {
		b.started <- struct{}{}
		<-b.gate
	}
	if resp, ok := b.replies[req.Message]; ok {
		return resp, nil
	}
	return &backend.Response{Message: "ok"}, nil
}

func newTestRouter(t *testing.T, b backend.Client) http.Handler {
	t.Helper()
	log := logger.Nop()
	svc := service.NewSessionService(b, session.NewMemoryBlobs(), log)
	chat := NewChatHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.Auth(testSecret))
	r.Get("/api/v1/chat", chat.State)
	r.Post("/api/v1/chat/messages", chat.Send)
	r.Post("/api/v1/chat/selections", chat.Select)
	r.Post("/api/v1/chat/reset", chat.Reset)
	r.Delete("/api/v1/chat", chat.Forget)
	return r
}

func bearer(t *testing.T, user string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Authorization", bearer(t, user))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// ---------------------------------------------------------------------------
// State and messages
// ---------------------------------------------------------------------------

func TestState_Fresh(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	rec := do(t, h, http.MethodGet, "/api/v1/chat", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decode[StateResponse](t, rec)
	if len(st.Messages) != 1 || st.Messages[0].Sender != model.SenderAssistant {
		t.Errorf("messages = %+v", st.Messages)
	}
	if st.Mode != "query" || st.Busy {
		t.Errorf("mode %q busy %v", st.Mode, st.Busy)
	}
}

func TestSend_ConfirmationFlow(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{replies: map[string]*backend.Response{
		"book A512 tomorrow 3pm": {
			Message:              "Confirm booking A512?",
			RequiresConfirmation: true,
			BookingDetails:       &model.BookingDetails{Room: "A512"},
		},
		"yes": {Message: "Booked."},
	}})

	rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"book A512 tomorrow 3pm"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	turn := decode[TurnResponse](t, rec)
	if turn.Reply == nil || !turn.Reply.RequiresConfirmation {
		t.Fatalf("reply = %+v", turn.Reply)
	}
	if turn.State.Mode != "confirmation" || turn.State.PendingConfirmation == nil {
		t.Errorf("state = %+v", turn.State)
	}

	turn = decode[TurnResponse](t, do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"yes"}`))
	if turn.Reply == nil || turn.Reply.Text != "Booked." {
		t.Errorf("reply = %+v", turn.Reply)
	}
	if turn.State.Mode != "query" || len(turn.State.Messages) != 5 {
		t.Errorf("state = %+v", turn.State)
	}
}

func TestSend_BlankIsNoop(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	turn := decode[TurnResponse](t, do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"   "}`))
	if turn.Reply != nil || len(turn.State.Messages) != 1 {
		t.Errorf("turn = %+v", turn)
	}
}

func TestSend_BadBody(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unknown field", `{"message":"hi"}`},
		{"too long", `{"text":"` + strings.Repeat("a", middleware.MaxMessageLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSend_BusyIsConflict(t *testing.T) {
	b := &scriptedBackend{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newTestRouter(t, b)

	done := make(chan int, 1)
	go func() {
		done <- do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"first"}`).Code
	}()
	<-b.started

	if rec := do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"second"}`); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	st := decode[StateResponse](t, do(t, h, http.MethodGet, "/api/v1/chat", "u1", ""))
	if !st.Busy {
		t.Error("state not busy while a turn is in flight")
	}

	close(b.gate)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first turn status = %d", code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"hello"}`)

	st := decode[StateResponse](t, do(t, h, http.MethodGet, "/api/v1/chat", "u2", ""))
	if len(st.Messages) != 1 {
		t.Errorf("u2 sees %d messages, want 1", len(st.Messages))
	}
}

// ---------------------------------------------------------------------------
// Selections
// ---------------------------------------------------------------------------

func listBackend() *scriptedBackend {
	return &scriptedBackend{replies: map[string]*backend.Response{
		"cancel my booking": {
			Message: "Which one?",
			Action:  model.ActionListForCancellation,
			BookingList: []model.BookingCandidate{
				{ID: "b1", RoomName: "A512"},
				{ID: "b2", RoomName: "B101"},
			},
		},
		"2": {Message: "Cancel B101?", RequiresConfirmation: true},
	}}
}

func TestSelect(t *testing.T) {
	h := newTestRouter(t, listBackend())
	list := decode[TurnResponse](t, do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"cancel my booking"}`))
	if list.Reply == nil || len(list.Reply.BookingList) != 2 {
		t.Fatalf("list reply = %+v", list.Reply)
	}

	body := `{"message_id":"` + list.Reply.ID + `","index":1}`
	rec := do(t, h, http.MethodPost, "/api/v1/chat/selections", "u1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	turn := decode[TurnResponse](t, rec)
	if turn.Reply == nil || turn.Reply.Text != "Cancel B101?" {
		t.Errorf("reply = %+v", turn.Reply)
	}
	msgs := turn.State.Messages
	if got := msgs[len(msgs)-2]; got.Sender != model.SenderUser || got.Text != "2" {
		t.Errorf("selection recorded as %+v", got)
	}
}

func TestSelect_Errors(t *testing.T) {
	h := newTestRouter(t, listBackend())
	list := decode[TurnResponse](t, do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"cancel my booking"}`))
	id := list.Reply.ID

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing id", `{"index":0}`, http.StatusBadRequest},
		{"missing index", `{"message_id":"` + id + `"}`, http.StatusBadRequest},
		{"negative index", `{"message_id":"` + id + `","index":-1}`, http.StatusBadRequest},
		{"out of range", `{"message_id":"` + id + `","index":2}`, http.StatusUnprocessableEntity},
		{"unknown message", `{"message_id":"nope","index":0}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/v1/chat/selections", "u1", tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

func TestReset(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"hello"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/chat/reset", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decode[StateResponse](t, rec)
	if len(st.Messages) != 1 || st.Mode != "query" {
		t.Errorf("state after reset = %+v", st)
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestReady(t *testing.T) {
	ok := NewHealthHandler(ReadinessCheck{Name: "store", Check: func(context.Context) error { return nil }})
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	failing := NewHealthHandler(ReadinessCheck{Name: "nats", Check: func(context.Context) error { return context.DeadlineExceeded }})
	rec = httptest.NewRecorder()
	failing.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "nats") {
		t.Errorf("status = %d body %s", rec.Code, rec.Body)
	}
}

func TestForget(t *testing.T) {
	h := newTestRouter(t, &scriptedBackend{})
	do(t, h, http.MethodPost, "/api/v1/chat/messages", "u1", `{"text":"hello"}`)

	if rec := do(t, h, http.MethodDelete, "/api/v1/chat", "u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	st := decode[StateResponse](t, do(t, h, http.MethodGet, "/api/v1/chat", "u1", ""))
	if len(st.Messages) != 1 {
		t.Errorf("messages after forget = %d, want 1", len(st.Messages))
	}
}
