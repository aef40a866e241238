package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal not initialized")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration not initialized")
	}
	if m.RateLimitExceeded == nil {
		t.Error("RateLimitExceeded not initialized")
	}
	if m.RateLimitKeys == nil {
		t.Error("RateLimitKeys not initialized")
	}
	if m.ActiveSubscribers == nil {
		t.Error("ActiveSubscribers not initialized")
	}
	if m.SubscriptionFrames == nil {
		t.Error("SubscriptionFrames not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestsTotal.WithLabelValues("io.example.getThing", "ok").Inc()
	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("io.example.getThing", "ok"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}

	m.ActiveSubscribers.Set(3)
	if got := testutil.ToFloat64(m.ActiveSubscribers); got != 3 {
		t.Errorf("ActiveSubscribers = %v, want 3", got)
	}

	m.RequestDuration.WithLabelValues("io.example.getThing").Observe(0.1)
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "request_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("request_duration histogram not found in gathered metrics")
	}
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RequestsTotal.WithLabelValues("io.example.getThing", "ok").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "xrpcd_requests_total") {
		t.Errorf("body missing xrpcd_requests_total metric: %s", w.Body.String())
	}
}

func TestMiddlewareRecordsRequestByNSID(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.With(Middleware(m)).Get("/xrpc/{nsid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/xrpc/io.example.getThing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("io.example.getThing", "ok"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}
}

func TestMiddlewareRecordsErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.With(Middleware(m)).Get("/xrpc/{nsid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/xrpc/io.example.getThing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("io.example.getThing", "error"))
	if count != 1 {
		t.Errorf("RequestsTotal(error) = %v, want 1", count)
	}
}
