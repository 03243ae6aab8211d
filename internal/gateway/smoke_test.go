// Package gateway_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/gateway"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
	}
}

// buildTestRouter creates the Gin engine with nil services. Validation-only
// paths never dereference a service, so the 400 surfaces are fully testable
// without a database.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return gateway.SetupRouter(gateway.RouterDeps{
		Cfg: testCfg(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	r := buildTestRouter(t)
	rr := do(t, r, http.MethodGet, "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := buildTestRouter(t)
	rr := do(t, r, http.MethodGet, "/metrics", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rr.Code)
	}
}

// TestValidationErrors confirms malformed bodies are rejected with the
// standard error envelope before any service is touched.
func TestValidationErrors(t *testing.T) {
	r := buildTestRouter(t)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/trades/buy", `{"account_id":1}`},                // missing fields
		{http.MethodPost, "/api/trades/sell", `not json`},                       // malformed
		{http.MethodPost, "/api/accounts", `{"username":"x"}`},                  // missing id
		{http.MethodPost, "/api/shorts", `{}`},                                  // empty
		{http.MethodPost, "/api/orders", `{"account_id":1,"instrument_id":2}`}, // missing target
		{http.MethodPost, "/api/funds", `{"name":""}`},                          // missing founder
	}
	for _, c := range cases {
		rr := do(t, r, c.method, c.path, c.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", c.method, c.path, rr.Code)
			continue
		}
		body := decodeBody(t, rr)
		if body["success"] != false {
			t.Errorf("%s %s envelope = %v, want success=false", c.method, c.path, body)
		}
		if body["code"] == nil || body["code"] == "" {
			t.Errorf("%s %s missing error code: %v", c.method, c.path, body)
		}
	}
}

// TestInvalidPathParams checks non-numeric and non-UUID path IDs fail fast.
func TestInvalidPathParams(t *testing.T) {
	r := buildTestRouter(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/accounts/abc/portfolio"},
		{http.MethodGet, "/api/instruments/xyz"},
		{http.MethodDelete, "/api/orders/not-a-uuid?account_id=1"},
		{http.MethodGet, "/api/funds/not-a-uuid"},
	}
	for _, p := range paths {
		rr := do(t, r, p.method, p.path, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", p.method, p.path, rr.Code)
		}
	}
}

// TestCORSPreflight verifies OPTIONS requests short-circuit with 204 and the
// CORS headers set.
func TestCORSPreflight(t *testing.T) {
	r := buildTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/trades/buy", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight missing Access-Control-Allow-Methods")
	}
}

func TestUnknownRoute(t *testing.T) {
	r := buildTestRouter(t)
	rr := do(t, r, http.MethodGet, "/api/nonexistent", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rr.Code)
	}
}
