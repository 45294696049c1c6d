package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeReports{}, &fakeTrigger{}, Config{}), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeReports{}, &fakeTrigger{}, Config{}), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_LastRun_NoneYet(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeReports{}, &fakeTrigger{}, Config{}), http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_LastRun_ReturnsReport(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 12, 11, 6, 0, 0, 0, time.UTC)
	reports := &fakeReports{report: &crawler.RunReport{
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		TotalSaved: 3,
		Sections: []crawler.SectionReport{
			{SectionID: "100", Section: crawler.SectionPolitics, Candidates: 4, Saved: 3},
			{SectionID: "101", Section: crawler.SectionEconomy, Error: "listing fetch failed"},
		},
	}}

	rec := serve(t, newTestServer(reports, &fakeTrigger{}, Config{}), http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got crawler.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalSaved)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, crawler.SectionEconomy, got.Sections[1].Section)
	assert.Equal(t, 1, got.Failed())
}

func TestServer_TriggerRun(t *testing.T) {
	t.Parallel()

	trigger := &fakeTrigger{accept: true}
	rec := serve(t, newTestServer(&fakeReports{}, trigger, Config{}), http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, trigger.calls)
	assert.NotNil(t, trigger.ctx)
}

func TestServer_TriggerRun_Busy(t *testing.T) {
	t.Parallel()

	trigger := &fakeTrigger{accept: false, running: true}
	server := newTestServer(&fakeReports{}, trigger, Config{})

	rec := serve(t, server, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already in progress")

	rec = serve(t, server, http.MethodGet, "/v1/runs/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"running":true}`, rec.Body.String())
}

func TestServer_TriggerRunUsesServerContext(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}
	runCtx := context.WithValue(context.Background(), ctxKey{}, "server")
	trigger := &fakeTrigger{accept: true}
	server := NewServer(runCtx, &fakeReports{}, trigger, Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "server", trigger.ctx.Value(ctxKey{}))
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeReports{}, &fakeTrigger{accept: true}, Config{APIKey: "secret"})

	rec := serve(t, server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "health probe stays open")

	rec = serve(t, server, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, server, http.MethodPost, "/v1/runs", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, server, http.MethodGet, "/v1/runs/status?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeReports{}, &fakeTrigger{}, Config{}), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(recoverMiddleware(zap.NewNop()))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(t *testing.T, s *Server, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer(reports Reports, trigger Trigger, cfg Config) *Server {
	return NewServer(context.Background(), reports, trigger, cfg, zap.NewNop())
}

type fakeReports struct {
	report *crawler.RunReport
}

func (f *fakeReports) LastReport() (crawler.RunReport, bool) {
	if f.report == nil {
		return crawler.RunReport{}, false
	}
	return *f.report, true
}

type fakeTrigger struct {
	mu      sync.Mutex
	accept  bool
	running bool
	calls   int
	ctx     context.Context
}

func (f *fakeTrigger) TryRun(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctx = ctx
	return f.accept
}

func (f *fakeTrigger) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
