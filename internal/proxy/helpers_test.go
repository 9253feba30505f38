package proxy_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/giffly-gateway/internal/cors"
	"github.com/goodtune/giffly-gateway/internal/proxy"
	"github.com/goodtune/giffly-gateway/internal/realip"
	"github.com/goodtune/giffly-gateway/internal/route"
)

var allowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
	"http://185.91.54.146",
	"https://185.91.54.146",
}

// captured is what a mock upstream saw.
type captured struct {
	Method   string
	Path     string
	RawQuery string
	Host     string
	Header   http.Header
	Body     string
}

// recordingUpstream returns a backend that reports each request it receives
// on the returned channel and replies with respond.
func recordingUpstream(t *testing.T, respond http.HandlerFunc) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Host:     r.Host,
			Header:   r.Header.Clone(),
			Body:     string(body),
		}
		if respond != nil {
			respond(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("from backend"))
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func receive(t *testing.T, ch <-chan captured) captured {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("upstream received no request")
		return captured{}
	}
}

type testConfig struct {
	backend    string
	staticRoot string
	mediaRoot  string
	trusted    []string
	opts       []proxy.Option
}

func newTestHandler(t *testing.T, cfg testConfig) *proxy.Handler {
	t.Helper()
	if cfg.backend == "" {
		cfg.backend = "http://backend.invalid:8000"
	}
	u, err := url.Parse(cfg.backend)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.staticRoot == "" {
		cfg.staticRoot = t.TempDir()
	}
	if cfg.mediaRoot == "" {
		cfg.mediaRoot = t.TempDir()
	}
	table, err := route.NewTable(map[string]*url.URL{route.BackendUpstream: u}, route.Default(cfg.staticRoot, cfg.mediaRoot))
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := realip.NewResolver(cfg.trusted)
	if err != nil {
		t.Fatal(err)
	}
	policy := cors.NewPolicy(allowedOrigins, cors.DefaultMethods, cors.DefaultHeaders, true, 24*time.Hour)
	return proxy.NewHandler(table, policy, resolver, nil, cfg.opts...)
}

// roundTripFunc lets a test stand in for the upstream transport.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func okTransport(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"status":"healthy"}`)),
		Request:    r,
	}, nil
}
