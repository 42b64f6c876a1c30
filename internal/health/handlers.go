package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var draining atomic.Bool

// SetReady toggles readiness. The API turns it off when shutdown begins.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Check probes one dependency.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(ctx context.Context) error
}

// Handler serves liveness and readiness probes.
type Handler struct {
	Checks []Check
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Ready runs every check in parallel and answers 503 if any fails or the
// process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		writeReport(w, http.StatusServiceUnavailable, report{Status: "draining"})
		return
	}
	if len(h.Checks) == 0 {
		writeReport(w, http.StatusServiceUnavailable, report{Status: "unconfigured"})
		return
	}

	results := make([]string, len(h.Checks))
	var wg sync.WaitGroup
	for i, c := range h.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(r.Context(), c)
		}()
	}
	wg.Wait()

	out := report{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for i, c := range h.Checks {
		out.Checks[c.Name] = results[i]
		if results[i] != "ok" {
			out.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeReport(w, code, out)
}

func run(ctx context.Context, c Check) string {
	if c.Probe == nil {
		return "not configured"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Probe(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func writeReport(w http.ResponseWriter, code int, body report) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
