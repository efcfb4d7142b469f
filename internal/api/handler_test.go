package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/nidhogg/sbert-service/internal/embedding"
	"github.com/nidhogg/sbert-service/internal/metrics"
	"github.com/nidhogg/sbert-service/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestHandler wires the handler to a 384-dim mock model.
func newTestHandler(t *testing.T) (*Handler, *embedding.MockProvider) {
	t.Helper()
	logger := zap.NewNop()
	mock := embedding.NewMockProvider(384)
	model, err := embedding.Load(context.Background(), mock, embedding.DefaultModel, 0, logger)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return NewHandler(service.New(model, logger), metrics.New(), logger), mock
}

func newTestServer(t *testing.T) (*httptest.Server, *embedding.MockProvider) {
	t.Helper()
	h, mock := newTestHandler(t)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts, mock
}

func postRaw(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, msg string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("expected %d, got %d", status, resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if !strings.Contains(body["error"], msg) {
		t.Errorf("expected error containing %q, got %q", msg, body["error"])
	}
}

// --- Tests ---

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body map[string]interface{}
		decodeJSON(t, resp, &body)
		if body["status"] != "healthy" {
			t.Errorf("expected status healthy, got %v", body["status"])
		}
		if body["model"] != "all-MiniLM-L6-v2" {
			t.Errorf("expected default model, got %v", body["model"])
		}
		if body["embedding_dim"] != float64(384) {
			t.Errorf("expected embedding_dim 384, got %v", body["embedding_dim"])
		}
	}
}

func TestEmbed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/embed", map[string]string{"text": "hello world"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var vec []float64
	decodeJSON(t, resp, &vec)
	if len(vec) != 384 {
		t.Fatalf("expected 384 floats, got %d", len(vec))
	}

	resp = postJSON(t, ts, "/embed", map[string]string{"text": "hello world", "model": "ignored"})
	var again []float64
	decodeJSON(t, resp, &again)
	for i := range vec {
		if vec[i] != again[i] {
			t.Fatalf("embedding not stable at %d", i)
		}
	}
}

func TestEmbed_Validation(t *testing.T) {
	ts, mock := newTestServer(t)
	calls := mock.Calls()

	tests := []struct {
		body string
		msg  string
	}{
		{``, `Missing "text" field`},
		{`{}`, `Missing "text" field`},
		{`{"text": 123}`, `"text" must be a string`},
		{`{"text": "   "}`, `"text" cannot be empty`},
		{`[1, 2]`, "must be a JSON object"},
		{`{"text": "unterminated`, "Invalid JSON body"},
	}
	for _, tt := range tests {
		expectError(t, postRaw(t, ts, "/embed", tt.body), http.StatusBadRequest, tt.msg)
	}
	if mock.Calls() != calls {
		t.Error("validation failures must not reach the model")
	}
}

func TestEmbed_BodyTooLarge(t *testing.T) {
	h, mock := newTestHandler(t)
	calls := mock.Calls()

	body := `{"text": "` + strings.Repeat("a", 11<<20) + `"}`
	for _, path := range []string{"/embed", "/batch-embed"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)

		expectError(t, rec.Result(), http.StatusRequestEntityTooLarge, "too large")
	}
	if mock.Calls() != calls {
		t.Error("oversized bodies must not reach the model")
	}
}

func TestEmbed_ProviderFailure(t *testing.T) {
	ts, mock := newTestServer(t)
	mock.SetErr(errors.New("CUDA out of memory"))

	resp := postJSON(t, ts, "/embed", map[string]string{"text": "hello"})
	expectError(t, resp, http.StatusInternalServerError, "Failed to generate embedding: CUDA out of memory")
}

func TestEmbed_ProviderFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	mock := embedding.NewMockProvider(384)
	model, err := embedding.Load(context.Background(), mock, embedding.DefaultModel, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	h := NewHandler(service.New(model, logger), metrics.New(), logger)
	mock.SetErr(errors.New("backend unavailable"))

	req := httptest.NewRequest(http.MethodPost, "/embed", strings.NewReader(`{"text": "hello"}`))
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry for the failure, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.ErrorLevel {
		t.Errorf("logged at %v, want error", e.Level)
	}
	if got := e.ContextMap()["request_id"]; got != "req-42" {
		t.Errorf("request_id = %v, want req-42", got)
	}
}

func TestBatchEmbed(t *testing.T) {
	ts, _ := newTestServer(t)

	texts := []string{"alpha", "beta", "gamma"}
	resp := postJSON(t, ts, "/batch-embed", map[string]interface{}{"texts": texts})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var vecs [][]float64
	decodeJSON(t, resp, &vecs)
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, text := range texts {
		if len(vecs[i]) != 384 {
			t.Errorf("vector %d has %d values", i, len(vecs[i]))
		}
		var single []float64
		decodeJSON(t, postJSON(t, ts, "/embed", map[string]string{"text": text}), &single)
		if single[0] != vecs[i][0] {
			t.Errorf("vector %d does not match its text", i)
		}
	}
}

func TestBatchEmbed_Validation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		body string
		msg  string
	}{
		{`{}`, `Missing "texts" field`},
		{`{"texts": []}`, `"texts" cannot be empty`},
		{`{"texts": "not-a-list"}`, `"texts" must be an array`},
		{`{"texts": {"a": "b"}}`, `"texts" must be an array`},
		{`{"texts": ["ok", 5]}`, "Item at index 1 is not a string"},
	}
	for _, tt := range tests {
		expectError(t, postRaw(t, ts, "/batch-embed", tt.body), http.StatusBadRequest, tt.msg)
	}
}

func TestBatchEmbed_ProviderFailure(t *testing.T) {
	ts, mock := newTestServer(t)
	mock.SetErr(errors.New("backend unavailable"))

	resp := postJSON(t, ts, "/batch-embed", map[string]interface{}{"texts": []string{"a", "b"}})
	expectError(t, resp, http.StatusInternalServerError, "Failed to generate embeddings: backend unavailable")
}

func TestConcurrentRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, _ := json.Marshal(map[string]interface{}{"texts": []string{"same", "text"}})
			resp, err := http.Post(ts.URL+"/batch-embed", "application/json", bytes.NewReader(b))
			if err != nil {
				errs <- err.Error()
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != 200 {
				errs <- resp.Status
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	postJSON(t, ts, "/embed", map[string]string{"text": "hello"}).Body.Close()
	postRaw(t, ts, "/embed", `{}`).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`sbert_embeddings_total{endpoint="embed"} 1`,
		`sbert_validation_errors_total{endpoint="embed"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
