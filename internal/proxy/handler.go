package proxy

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goodtune/giffly-gateway/internal/cors"
	"github.com/goodtune/giffly-gateway/internal/logging"
	"github.com/goodtune/giffly-gateway/internal/metrics"
	"github.com/goodtune/giffly-gateway/internal/realip"
	"github.com/goodtune/giffly-gateway/internal/route"
	"github.com/goodtune/giffly-gateway/internal/rxid"
)

// DefaultUpstreamTimeout bounds the wait for upstream response headers.
const DefaultUpstreamTimeout = 60 * time.Second

// Handler is the gateway's HTTP handler. It holds no per-request state.
type Handler struct {
	table     *route.Table
	cors      cors.Policy
	realip    *realip.Resolver
	logger    *slog.Logger
	transport http.RoundTripper
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithTransport replaces the transport used for upstream round trips.
func WithTransport(rt http.RoundTripper) Option {
	return func(h *Handler) { h.transport = rt }
}

// WithUpstreamTimeout sets how long to wait for upstream response headers.
// It only applies to the default transport.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithClock sets the time source used for Expires headers.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a new gateway handler. A nil resolver trusts no
// forwarding headers.
func NewHandler(table *route.Table, policy cors.Policy, resolver *realip.Resolver, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		table:   table,
		cors:    policy,
		realip:  resolver,
		logger:  logger,
		timeout: DefaultUpstreamTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.transport == nil {
		h.transport = newTransport(h.timeout)
	}
	return h
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// ServeHTTP matches the request against the route table and dispatches it.
// CORS headers are attached to every response, whatever the outcome.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	body := &countingBody{ReadCloser: r.Body}
	if r.Body != nil {
		r.Body = body
	}

	origin := r.Header.Get("Origin")
	h.cors.Apply(rec.Header(), origin)
	if h.cors.Denied(origin) {
		metrics.CORSDenied.Inc()
	}

	reqPath := cleanPath(r.URL.Path)
	rule, ok := h.table.Match(reqPath)

	label, upstream := "unmatched", ""
	switch {
	case r.Method == http.MethodConnect:
		label = "connect"
		h.handleTunnel(rec, r)
	case !ok:
		http.NotFound(rec, r)
	case rule.Preflight && r.Method == http.MethodOptions:
		label = rule.Name
		h.handlePreflight(rec, origin)
	case rule.IsFile():
		label, upstream = rule.Name, rule.Root
		h.handleStatic(rec, r, rule, reqPath)
	default:
		label, upstream = rule.Name, h.table.Upstream(rule.Upstream).String()
		h.handleForward(rec, r, rule, reqPath)
	}

	duration := time.Since(start)
	metrics.RequestsTotal.WithLabelValues(r.Method, label, strconv.Itoa(rec.status)).Inc()
	metrics.RequestDuration.WithLabelValues(r.Method, label).Observe(duration.Seconds())
	metrics.BytesSent.WithLabelValues(label).Add(float64(rec.bytes))
	metrics.BytesReceived.WithLabelValues(label).Add(float64(body.n.Load()))

	logging.LogRequest(h.logger, logging.RequestEntry{
		RequestID:  rxid.FromContext(r.Context()),
		ClientIP:   h.realip.ClientIP(r),
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		Rule:       label,
		Upstream:   upstream,
		StatusCode: rec.status,
		Duration:   duration,
		BytesSent:  rec.bytes,
		BytesRecv:  body.n.Load(),
	})
}

// handlePreflight answers a CORS preflight directly with an empty 204. The
// server never writes Content-Length on a 204, so none is set here.
func (h *Handler) handlePreflight(w http.ResponseWriter, origin string) {
	metrics.PreflightTotal.Inc()
	h.cors.ApplyPreflight(w.Header(), origin)
	w.WriteHeader(http.StatusNoContent)
}

// cleanPath normalises p the way ServeMux does, keeping a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}

// responseRecorder captures the status and byte count of a response.
type responseRecorder struct {
	http.ResponseWriter

	status      int
	bytes       int64
	wroteHeader bool
}

func (rr *responseRecorder) WriteHeader(status int) {
	if !rr.wroteHeader {
		rr.status = status
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += int64(n)
	return n, err
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// countingBody counts request body bytes. The transport reads it from its
// own goroutine.
type countingBody struct {
	io.ReadCloser
	n atomic.Int64
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n.Add(int64(n))
	return n, err
}
