package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe checks one dependency. A nil probe means the dependency is not
// configured and is reported as skipped rather than failing readiness.
type Probe func(ctx context.Context) error

// Handler exposes liveness and readiness endpoints. Readiness probes
// the session store and, when configured, redis.
type Handler struct {
	Store   Probe
	Redis   Probe
	Timeout time.Duration
}

// Live reports process liveness.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	status := map[string]string{
		"store": h.run(ctx, h.Store),
		"redis": h.run(ctx, h.Redis),
	}
	code := http.StatusOK
	for _, v := range status {
		if v != "ok" && v != "skipped" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) run(ctx context.Context, probe Probe) string {
	if probe == nil {
		return "skipped"
	}
	if err := probe(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
