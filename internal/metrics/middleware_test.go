package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// routeObservations returns how many latency samples were recorded for route.
func routeObservations(t *testing.T, method, route string) uint64 {
	t.Helper()
	m, ok := httpRequestDurationSeconds.WithLabelValues(method, route).(prometheus.Metric)
	if !ok {
		t.Fatalf("observer for %s %s is not a metric", method, route)
	}
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatal(err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestMiddlewareLabelsRunRoutes(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/last", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/runs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	conflictBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409"))
	lastBefore := routeObservations(t, "GET", "/v1/runs/last")
	triggerBefore := routeObservations(t, "POST", "/v1/runs")

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil),
		httptest.NewRequest(http.MethodGet, "/v1/runs/last?verbose=1", nil),
		httptest.NewRequest(http.MethodPost, "/v1/runs", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")) - okBefore; got != 2 {
		t.Errorf("GET 200 requests = %f, want 2", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409")) - conflictBefore; got != 1 {
		t.Errorf("POST 409 requests = %f, want 1", got)
	}
	if got := routeObservations(t, "GET", "/v1/runs/last") - lastBefore; got != 2 {
		t.Errorf("latency samples for /v1/runs/last = %d, want 2", got)
	}
	if got := routeObservations(t, "POST", "/v1/runs") - triggerBefore; got != 1 {
		t.Errorf("latency samples for /v1/runs = %d, want 1", got)
	}
}

func TestMiddlewareUnmatchedRouteIsUnknown(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := routeObservations(t, "GET", "unknown")
	notFoundBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/articles/123", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := routeObservations(t, "GET", "unknown") - before; got != 1 {
		t.Errorf("latency samples for unknown route = %d, want 1", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")) - notFoundBefore; got != 1 {
		t.Errorf("GET 404 requests = %f, want 1", got)
	}
}
