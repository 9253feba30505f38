package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goodtune/giffly-gateway/internal/config"
	"github.com/goodtune/giffly-gateway/internal/cors"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	u, err := url.Parse(backend)
	if err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		BackendURL:          u,
		StaticRoot:          t.TempDir(),
		MediaRoot:           t.TempDir(),
		AllowedOrigins:      cors.DefaultOrigins,
		AllowedMethods:      cors.DefaultMethods,
		AllowedHeaders:      cors.DefaultHeaders,
		AllowCredentials:    true,
		UpstreamTimeout:     time.Second,
		HealthCheckPath:     "/api/health/",
		HealthCheckInterval: time.Minute,
		LogTarget:           "stderr",
	}
}

func TestGatewayWiring(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("backend saw no X-Request-ID")
		}
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer backend.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	gw, err := newGateway(testConfig(t, backend.URL), logger)
	if err != nil {
		t.Fatalf("newGateway: %v", err)
	}

	rec := httptest.NewRecorder()
	gw.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health/", nil))
	if rec.Code != 200 {
		t.Errorf("gateway status: got %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response has no X-Request-ID")
	}

	rec = httptest.NewRecorder()
	gw.metrics.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz before first check: got %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	gw.metrics.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Errorf("metrics status: got %d, want 200", rec.Code)
	}
}

func TestGatewayBadTrustedProxy(t *testing.T) {
	cfg := testConfig(t, "http://backend:8000")
	cfg.TrustedProxies = []string{"224.0.0/24"}
	if _, err := newGateway(cfg, nil); err == nil {
		t.Error("expected error for bad trusted proxy CIDR")
	}
}
