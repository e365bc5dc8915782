package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type memoryWindowLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memoryWindowLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if m.err != nil {
		return false, 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[scope]++
	count := m.counts[scope]
	return count <= limit, count, nil
}

func limitedHandler(limiter *memoryWindowLimiter, limit int64) http.Handler {
	policy := NewRateLimitPolicy("webhooks", time.Minute, limit)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RateLimit(policy, limiter, nil)(next)
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	handler := limitedHandler(&memoryWindowLimiter{}, 2)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("first two requests must pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request must be limited, got %d", statuses[2])
	}
}

func TestRateLimitKeysByClientIP(t *testing.T) {
	handler := limitedHandler(&memoryWindowLimiter{}, 1)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", nil)
	first.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", nil)
	second.RemoteAddr = "10.0.0.2:5000"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, second)

	if rec.Code != http.StatusOK || rec2.Code != http.StatusOK {
		t.Fatalf("distinct IPs must not share a window: %d, %d", rec.Code, rec2.Code)
	}
}

func TestRateLimitDegradesOpenOnStoreFailure(t *testing.T) {
	handler := limitedHandler(&memoryWindowLimiter{err: errors.New("redis down")}, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("limiter failure must not block traffic, got %d", rec.Code)
	}
}

func TestRateLimitHonorsForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}
}
