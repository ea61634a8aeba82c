// Package health serves the liveness and readiness probes of the ccoli
// auxiliary endpoint.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// answers 200 only while every registered backend probe passes, so a
// deployment gateway can hold device traffic until the transcriber and the
// LLM are actually reachable. Both report JSON with the service name, the
// process uptime, and per-probe outcomes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

// probeTimeout bounds one backend probe during a /readyz request.
const probeTimeout = 5 * time.Second

// Checker is one named backend probe. Check returns nil while the backend
// can serve a turn and must respect ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the JSON body of both probes.
type report struct {
	Service string            `json:"service"`
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe routes. Safe for concurrent use; the probe list
// is fixed at construction.
type Handler struct {
	started  time.Time
	checkers []Checker
}

// New builds a [Handler] whose /readyz evaluates the given probes in order.
func New(checkers ...Checker) *Handler {
	return &Handler{
		started:  time.Now(),
		checkers: slices.Clone(checkers),
	}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200. A process that reaches this handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, "ok", nil)
}

// Readyz answers 200 only when every probe passes. Each probe runs with a
// [probeTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status, code := "ok", http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			status, code = "fail", http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	h.write(w, code, status, checks)
}

func (h *Handler) write(w http.ResponseWriter, code int, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report{
		Service: "ccoli",
		Status:  status,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Checks:  checks,
	})
}
