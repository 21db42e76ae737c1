package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t, Options{AllowedOrigin: "http://127.0.0.1:3000"})
	res := doRequest(t, api.Handler(), http.MethodGet, "/healthz", nil)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected allowed origin %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t, Options{})
	res := doRequest(t, api.Handler(), http.MethodOptions, "/bills/bill-seed", nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE to be allowed, got %q", got)
	}
}

func TestUnsupportedMethodReturns405(t *testing.T) {
	res := doRequest(t, newTestAPI(t, Options{}).Handler(), http.MethodPatch, "/bills/bill-seed", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestExportRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t, Options{ExportRatePerMinute: 2})
	h := api.Handler()

	for i := 0; i < 3; i++ {
		res := doRequest(t, h, http.MethodGet, "/bills/bill-seed/export.pdf", nil)
		if i < 2 && res.Code != http.StatusOK {
			t.Fatalf("attempt %d expected 200 before limit, got %d", i+1, res.Code)
		}
		if i == 2 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 3 expected 429, got %d", res.Code)
		}
	}

	// Other clients keep their own budget.
	req := httptest.NewRequest(http.MethodGet, "/bills/bill-seed/export.pdf", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected a different client to pass, got %d", res.Code)
	}
}

func TestClientKeyStripsPort(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:5000": "127.0.0.1",
		"[::1]:8080":     "::1",
		"":               "unknown",
		"localhost":      "localhost",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientKey(req); got != want {
			t.Fatalf("clientKey(%q) = %q, want %q", remote, got, want)
		}
	}
}

type downRepo struct{}

func (downRepo) ListBills(context.Context) ([]domain.Bill, error) {
	return nil, fmt.Errorf("%w: dial tcp 10.0.0.5:5432: connection refused", store.ErrUnavailable)
}
func (downRepo) GetBill(context.Context, string) (*domain.Bill, error) {
	return nil, store.ErrUnavailable
}
func (downRepo) CreateBill(context.Context, domain.Bill) (*domain.Bill, error) {
	return nil, store.ErrUnavailable
}
func (downRepo) UpdateBill(context.Context, domain.Bill) (*domain.Bill, error) {
	return nil, store.ErrUnavailable
}
func (downRepo) DeleteBill(context.Context, string) error { return store.ErrUnavailable }
func (downRepo) Ping(context.Context) error               { return store.ErrUnavailable }
func (downRepo) Close() error                             { return nil }

func TestStoreFailuresHideInternals(t *testing.T) {
	h := newTestAPIWith(t, downRepo{}, solidRasterizer{}, Options{}).Handler()

	res := doRequest(t, h, http.MethodGet, "/bills", nil)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "10.0.0.5") {
		t.Fatalf("response leaked internal address: %s", res.Body.String())
	}
	if body := decodeBody[map[string]string](t, res); body["error"] != "internal server error" {
		t.Fatalf("expected generic error, got %q", body["error"])
	}

	res = doRequest(t, h, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from health check, got %d", res.Code)
	}
}
