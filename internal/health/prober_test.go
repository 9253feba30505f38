package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goodtune/giffly-gateway/internal/health"
)

func newBackend(t *testing.T, up *atomic.Bool) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health/" {
			http.NotFound(w, r)
			return
		}
		if !up.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL + "/api/health/")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestCheckTransitions(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	p := health.NewProber("backend", newBackend(t, &up), time.Minute, nil)

	if !p.Check(context.Background()) || !p.Healthy() {
		t.Fatal("expected healthy")
	}

	up.Store(false)
	if p.Check(context.Background()) || p.Healthy() {
		t.Fatal("expected unhealthy after 500")
	}

	up.Store(true)
	if !p.Check(context.Background()) {
		t.Fatal("expected recovery")
	}
}

func TestCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL + "/api/health/")
	srv.Close()

	p := health.NewProber("backend", u, time.Minute, nil)
	if p.Check(context.Background()) {
		t.Error("expected unreachable upstream to be unhealthy")
	}
}

func TestServeHTTP(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	p := health.NewProber("backend", newBackend(t, &up), time.Minute, nil)

	tests := []struct {
		up         bool
		wantCode   int
		wantStatus string
	}{
		{true, http.StatusOK, "healthy"},
		{false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		up.Store(tt.up)
		p.Check(context.Background())

		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

		if rec.Code != tt.wantCode {
			t.Errorf("code: got %d, want %d", rec.Code, tt.wantCode)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body["status"] != tt.wantStatus || body["upstream"] != "backend" {
			t.Errorf("body: got %v", body)
		}
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	p := health.NewProber("backend", newBackend(t, &up), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !p.Healthy() {
		select {
		case <-deadline:
			t.Fatal("prober never reported healthy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
