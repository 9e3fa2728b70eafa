package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/me/evalzoo/internal/metrics"
	"github.com/me/evalzoo/pkg/model"
)

type staticStatus model.QueueStatus

func (s staticStatus) Snapshot() model.QueueStatus { return model.QueueStatus(s) }

func testStatus() staticStatus {
	return staticStatus{
		Pending:    []model.Pair{{38, 41}, {41, 37}},
		LastQueued: 41,
		InFlight:   16,
		Jobs:       4,
		UpdatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testServer(m *metrics.Metrics) *Server {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(testStatus(), m, logger)
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Error     *model.APIError `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func TestDiscovery(t *testing.T) {
	env := doGet(t, testServer(metrics.New()), "/api/v1/", http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", env.RequestID)
	}

	var data discoveryResponse
	json.Unmarshal(env.Data, &data)
	if data.Name != "evalzoo" {
		t.Errorf("name = %q, want evalzoo", data.Name)
	}
	if len(data.Endpoints) != 4 {
		t.Errorf("endpoints count = %d, want 4", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	env := doGet(t, testServer(nil), "/api/v1/health", http.StatusOK)

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.LastTick != "2024-03-01T12:00:00Z" {
		t.Errorf("last_tick = %q", data.LastTick)
	}
}

func TestQueue(t *testing.T) {
	env := doGet(t, testServer(nil), "/api/v1/queue", http.StatusOK)

	var got model.QueueStatus
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if diff := cmp.Diff(model.QueueStatus(testStatus()), got); diff != "" {
		t.Errorf("queue mismatch (-want +got):\n%s", diff)
	}
}

func TestQueuedPair(t *testing.T) {
	srv := testServer(nil)

	env := doGet(t, srv, "/api/v1/queue/41-38", http.StatusOK)
	var data queuedPairResponse
	json.Unmarshal(env.Data, &data)
	if data.Pair != (model.Pair{41, 38}) || data.Queued != (model.Pair{38, 41}) {
		t.Errorf("queued pair = %+v", data)
	}

	env = doGet(t, srv, "/api/v1/queue/41-40", http.StatusNotFound)
	if env.Status != "error" || env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("missing pair envelope = %+v", env)
	}

	env = doGet(t, srv, "/api/v1/queue/latest", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("bad pair envelope = %+v", env)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	w := httptest.NewRecorder()
	testServer(nil).ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.RequestID != "trace-123" {
		t.Errorf("request_id = %q, want trace-123", env.RequestID)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.RecordState(2, 41)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	testServer(m).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "evalzoo_last_version_queued 41") {
		t.Errorf("metrics output missing watermark gauge:\n%s", w.Body.String())
	}
}

func TestMetrics_Disabled(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	testServer(nil).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without registry: status=%d, want 404", w.Code)
	}
}
