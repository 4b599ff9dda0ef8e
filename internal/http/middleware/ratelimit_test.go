package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bighog300/artpulse/internal/ratelimit"
)

func newLimitedRouter(limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Principal())
	r.POST("/write", RateLimit(ratelimit.New(nil), "write", limit, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimit_OverBudgetIs429(t *testing.T) {
	r := newLimitedRouter(2)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		req.Header.Set(HeaderUserID, "u1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do(); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	var body struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Code != "rate_limited" || body.RetryAfter < 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRateLimit_SeparatePrincipals(t *testing.T) {
	r := newLimitedRouter(1)

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		if user != "" {
			req.Header.Set(HeaderUserID, user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("u1"); code != http.StatusNoContent {
		t.Fatalf("u1 first: %d", code)
	}
	if code := do("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("u1 second: %d", code)
	}
	// A different user, and the anonymous IP budget, are unaffected.
	if code := do("u2"); code != http.StatusNoContent {
		t.Fatalf("u2: %d", code)
	}
	if code := do(""); code != http.StatusNoContent {
		t.Fatalf("anonymous: %d", code)
	}
}
