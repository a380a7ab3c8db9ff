package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mtoso/shadowline/internal/health"
)

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// serve mounts h on a mux and issues a GET against path, returning the
// recorded response and its decoded JSON body.
func serve(t *testing.T, h *health.Handler, path string) (*httptest.ResponseRecorder, probeResponse) {
	t.Helper()

	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	var body probeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rec, body
}

func passing(_ context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec, body := serve(t, health.New(), "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body.Status != "ok" {
		t.Errorf("body status = %q, want %q", body.Status, "ok")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []health.Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []health.Checker{
				{Name: "lessons", Check: passing},
				{Name: "recognizer", Check: passing},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"lessons": "ok", "recognizer": "ok"},
		},
		{
			name: "one fails",
			checkers: []health.Checker{
				{Name: "lessons", Check: failing("connection refused")},
				{Name: "recognizer", Check: passing},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"lessons":    "fail: connection refused",
				"recognizer": "ok",
			},
		},
		{
			name: "all fail",
			checkers: []health.Checker{
				{Name: "lessons", Check: failing("timeout")},
				{Name: "recognizer", Check: failing("model not loaded")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"lessons":    "fail: timeout",
				"recognizer": "fail: model not loaded",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, body := serve(t, health.New(tc.checkers...), "/readyz")

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("body status = %q, want %q", body.Status, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
