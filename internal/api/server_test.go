package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"party-doorman/internal/handler"
	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
	"party-doorman/internal/storage"
)

const (
	testToken = "s3cret"
	testHost  = "+12025550100"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	srv   *Server
	store *storage.Store
	rec   *outbox.Recorder
}

func newFixture(t *testing.T, withEvent bool) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "doorman.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if withEvent {
		_, err := store.CreateEvent(context.Background(), &models.Event{
			Name:             "Rooftop",
			Date:             "2026-03-21",
			TimeWindow:       "9pm-late",
			LocationDropTime: "8pm",
			HostPhone:        testHost,
		})
		if err != nil {
			t.Fatalf("CreateEvent() error: %v", err)
		}
	}

	rec := &outbox.Recorder{}
	out := outbox.New(rec, store, zerolog.Nop())
	disp := handler.NewDispatcher(store, out, handler.Config{Region: "US"}, zerolog.Nop())
	srv := New(store, disp, out, nil, Config{Token: testToken, Debug: true}, zerolog.Nop())
	return &fixture{srv: srv, store: store, rec: rec}
}

func (f *fixture) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthzNeedsNoToken(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/healthz", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("response has no request id")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, true)
	if w := f.do(t, http.MethodGet, "/api/event", "", false); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/event", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}
}

func TestEventNotFound(t *testing.T) {
	f := newFixture(t, false)
	if w := f.do(t, http.MethodGet, "/api/event", "", true); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEvent(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(t, http.MethodGet, "/api/event", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var ev models.Event
	decode(t, w, &ev)
	if ev.Name != "Rooftop" || ev.HostPhone != testHost {
		t.Errorf("event = %+v", ev)
	}
}

func TestMessageWebhookAndViews(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodPost, "/api/messages", `{"from":"+12025550100","text":"+1 202 555 0111"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp messageResponse
	decode(t, w, &resp)
	if resp.Reply != "Sent 1 invite." {
		t.Errorf("reply = %q, want %q", resp.Reply, "Sent 1 invite.")
	}
	if got := f.rec.To(testHost); len(got) != 0 {
		t.Errorf("webhook reply was sent over the transport: %q", got)
	}
	if got := f.rec.To("+12025550111"); len(got) != 1 {
		t.Errorf("invitee got %d messages, want 1", len(got))
	}

	var guests struct {
		Guests []models.Guest `json:"guests"`
	}
	decode(t, f.do(t, http.MethodGet, "/api/guests?status=pending", "", true), &guests)
	if len(guests.Guests) != 1 || guests.Guests[0].Phone != "+12025550111" {
		t.Errorf("pending guests = %+v", guests.Guests)
	}
	decode(t, f.do(t, http.MethodGet, "/api/guests?status=confirmed", "", true), &guests)
	if len(guests.Guests) != 0 {
		t.Errorf("confirmed guests = %+v, want none", guests.Guests)
	}
	decode(t, f.do(t, http.MethodGet, "/api/guests?q=0111", "", true), &guests)
	if len(guests.Guests) != 1 {
		t.Errorf("search results = %+v, want one", guests.Guests)
	}
	if w := f.do(t, http.MethodGet, "/api/guests?status=maybe", "", true); w.Code != http.StatusBadRequest {
		t.Errorf("unknown status: code = %d, want 400", w.Code)
	}

	var stats models.EventStats
	decode(t, f.do(t, http.MethodGet, "/api/stats", "", true), &stats)
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}

	var graph graphResponse
	decode(t, f.do(t, http.MethodGet, "/api/graph", "", true), &graph)
	if graph.Connections == nil || len(graph.Connections) != 0 || graph.Stats == nil {
		t.Errorf("graph = %+v", graph)
	}

	msgs, err := f.store.RecentMessages(context.Background(), testHost, 10)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("logged %d host messages, want inbound and reply", len(msgs))
	}
}

func TestMessageWebhookRejectsBadBody(t *testing.T) {
	f := newFixture(t, true)
	if w := f.do(t, http.MethodPost, "/api/messages", `{"text":"hi"}`, true); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
