package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/gateway/middleware"
)

func newLimitedRouter(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimit("test", rps))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/acct/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:4567"
	r.ServeHTTP(w, req)
	return w
}

// TestRateLimitBurstThenReject exhausts the burst allowance (2×rps) from a
// single IP and checks the next request is rejected with the standard
// error envelope.
func TestRateLimitBurstThenReject(t *testing.T) {
	r := newLimitedRouter(2) // burst of 4

	for i := 0; i < 4; i++ {
		if w := doGet(r, "/ping"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := doGet(r, "/ping")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", w.Code)
	}
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal rejection body: %v", err)
	}
	if body.Success {
		t.Error("rejection body should carry success=false")
	}
	if body.Code != "ERR_RATE_LIMITED" {
		t.Errorf("rejection code = %q, want ERR_RATE_LIMITED", body.Code)
	}
}

// TestRateLimitKeysPerAccount verifies account-scoped routes bucket on the
// :id parameter: draining one account's allowance leaves other accounts and
// IP-keyed routes untouched even though every request shares one IP.
func TestRateLimitKeysPerAccount(t *testing.T) {
	r := newLimitedRouter(1) // burst of 2

	doGet(r, "/acct/7")
	doGet(r, "/acct/7")
	if w := doGet(r, "/acct/7"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("account 7 over-limit status = %d, want 429", w.Code)
	}

	if w := doGet(r, "/acct/8"); w.Code != http.StatusOK {
		t.Errorf("account 8 status = %d, want 200", w.Code)
	}
	if w := doGet(r, "/ping"); w.Code != http.StatusOK {
		t.Errorf("ip-keyed route status = %d, want 200", w.Code)
	}
}
