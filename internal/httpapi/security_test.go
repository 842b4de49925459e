package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stockroom/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	ta := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	ta.handler.ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	ta := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/purchase-orders", nil)
	res := httptest.NewRecorder()

	ta.handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected configured origin, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	ta := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		ta.api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	ta := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	ta.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t, "manager", "manager123")

	rec := ta.do(t, http.MethodPost, "/api/v1/suppliers", token, map[string]any{
		"name":    "Orchard Co",
		"balance": 100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 500); got != 500 {
		t.Fatalf("expected capped limit 500, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 500); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 500); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestParseListQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/purchase-orders?page=2&limit=5&sort=poNumber&order=DESC&status=Pending&q=sugr", nil)
	query := parseListQuery(req)

	if query.Page != 2 || query.Limit != 5 || query.Sort != "poNumber" || !query.Desc {
		t.Fatalf("unexpected paging/sort %+v", query)
	}
	if query.Status != "Pending" || query.Search != "sugr" {
		t.Fatalf("unexpected filters %+v", query)
	}
}
