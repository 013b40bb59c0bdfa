package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// responseTap observes the status code and body size a handler produced.
type responseTap struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func tapResponse(w http.ResponseWriter) *responseTap {
	return &responseTap{ResponseWriter: w, status: http.StatusOK}
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(p []byte) (int, error) {
	n, err := t.ResponseWriter.Write(p)
	t.bytes += int64(n)
	return n, err
}

// routePattern resolves the chi pattern that matched the request, e.g.
// /api/v1/sessions/{id}/status. The pattern is only populated once the
// request has been routed, so callers read it after the handler returns.
// Unrouted requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// Instrument counts requests and observes latency per method and matched
// route, and tracks the in-flight gauge.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := tapResponse(w)
		m.InFlight.Inc()
		start := time.Now()
		next.ServeHTTP(t, r)
		m.InFlight.Dec()

		route := routePattern(r)
		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(t.status)).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
	})
}

// Tracing opens a server span per request. The span begins before
// routing, so it starts out named by method alone and is renamed with
// the matched route once the handler has run.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("patungan.http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method)
		defer span.End()

		t := tapResponse(w)
		next.ServeHTTP(t, r.WithContext(ctx))

		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
			attribute.Int("http.status_code", t.status),
		)
		if t.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(t.status))
		}
	})
}
