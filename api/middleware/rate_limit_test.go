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

type fakeWindow struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeWindow) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	limiter := &fakeWindow{}
	handler := RateLimit(NewRateLimitPolicy("shares", time.Minute, 2), limiter, nil)(okHandler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/public/shares/x", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/public/shares/x", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 1.2.3.4")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rec.Code)
	}
}

func TestRateLimitDisabledOrFailing(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("shares", 0, 0), &fakeWindow{err: errors.New("down")}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected disabled policy to pass, got %d", rec.Code)
	}

	handler = RateLimit(NewRateLimitPolicy("shares", time.Minute, 5), &fakeWindow{err: errors.New("down")}, nil)(okHandler())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected dependency failure status, got %d", rec.Code)
	}
}
