package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/bizscout/api/handler"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/models"
)

type idleService struct{}

func (idleService) Stats() models.PoolStats { return models.PoolStats{MaxConcurrent: 2} }

func (idleService) Lookup(ctx context.Context, queries []string, onBatch func(done, total int)) (models.BatchResult, error) {
	return models.BatchResult{}, nil
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}
	return cfg
}

func TestRouterAuth(t *testing.T) {
	r := NewRouter(handler.LookupDeps{Service: idleService{}}, testConfig(), time.Now())

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer key", map[string]string{"Authorization": "Bearer k1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/lookups/none", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouterOpenRoutes(t *testing.T) {
	r := NewRouter(handler.LookupDeps{Service: idleService{}}, testConfig(), time.Now())

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestRouterRateLimit(t *testing.T) {
	r := NewRouter(handler.LookupDeps{Service: idleService{}}, testConfig(), time.Now())

	var codes []int
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/lookups", strings.NewReader(`{}`))
		req.Header.Set("X-API-Key", "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [400 429]", codes)
	}
}
