package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Middleware wraps an HTTP handler to record RequestsTotal and
// RequestDuration, labeled by the {nsid} chi route param. Grounded on the
// teacher's MetricsMiddleware (status-recording ResponseWriter wrapper,
// ok/error status bucketing), adapted from method+status labeling to
// nsid+status since xrpcd's requests are distinguished by NSID rather
// than HTTP method alone.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			nsid := chi.URLParam(r, "nsid")
			if nsid == "" {
				nsid = "unknown"
			}
			status := statusToLabel(wrapped.status)

			m.RequestDuration.WithLabelValues(nsid).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(nsid, status).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
