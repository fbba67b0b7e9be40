package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestCorrelationID_Context(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelationID(ctx); got != "" {
		t.Errorf("GetCorrelationID on empty ctx = %q, want empty", got)
	}
	ctx = WithCorrelationID(ctx, "corr-1")
	if got := GetCorrelationID(ctx); got != "corr-1" {
		t.Errorf("GetCorrelationID = %q, want corr-1", got)
	}
}

func TestCorrelation_GeneratesAndEchoes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Correlation())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = GetCorrelationID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Error("correlation id should be generated when absent")
	}
	if got := w.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestCorrelation_PropagatesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Correlation())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = GetCorrelationID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "client-corr-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if seen != "client-corr-7" {
		t.Errorf("correlation id = %q, want client-corr-7", seen)
	}
	if got := w.Header().Get(CorrelationHeader); got != "client-corr-7" {
		t.Errorf("response header = %q, want client-corr-7", got)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(l *stubLimiter) int {
		r := gin.New()
		r.Use(RateLimit(l, 10, zap.NewNop()))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Code
	}

	if code := run(&stubLimiter{allow: true}); code != http.StatusOK {
		t.Errorf("allowed status = %d, want 200", code)
	}
	if code := run(&stubLimiter{allow: false}); code != http.StatusTooManyRequests {
		t.Errorf("denied status = %d, want 429", code)
	}
	// Limiter errors fail open.
	if code := run(&stubLimiter{allow: true, err: context.DeadlineExceeded}); code != http.StatusOK {
		t.Errorf("limiter error status = %d, want 200 (fail open)", code)
	}
}
