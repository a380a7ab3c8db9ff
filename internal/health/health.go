// Package health serves the liveness and readiness probes for the scoring
// service.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs the
// registered [Checker] probes and answers 200 only when all of them pass.
// Both endpoints respond with a JSON body carrying a "status" field and, for
// readiness, a per-check "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Per-check deadline for readiness probes.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when the dependency is
// usable and an error describing the problem otherwise; it must honor
// context cancellation.
type Checker struct {
	// Name keys this check's entry in the readiness response, for example
	// "recognizer" or "lessons".
	Name string

	Check func(ctx context.Context) error
}

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers health and readiness requests. The checker set is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers. Readiness evaluates them
// sequentially in the order given here.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts the /healthz and /readyz routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe. It always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, probeBody{Status: "ok"})
}

// Readyz runs every checker under a [checkTimeout] deadline derived from the
// request context and reports 503 if any of them fail.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.runChecks(r.Context())

	body := probeBody{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ok {
		body.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	respond(w, code, body)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ok := true
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ok = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ok
}

func respond(w http.ResponseWriter, code int, body probeBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
