package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/goodtune/giffly-gateway/internal/metrics"
)

// Prober polls an upstream health endpoint in the background. Its state is
// reported on /healthz and as a gauge; it never influences routing.
type Prober struct {
	Name     string
	Target   *url.URL
	Interval time.Duration
	Client   *http.Client

	logger  *slog.Logger
	healthy atomic.Bool
	checked atomic.Bool
}

// NewProber creates a Prober for target.
func NewProber(name string, target *url.URL, interval time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		Name:     name,
		Target:   target,
		Interval: interval,
		Client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Start checks immediately and then every Interval until ctx is done.
func (p *Prober) Start(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("health prober stopped", "upstream", p.Name)
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check performs a single probe and records the result.
func (p *Prober) Check(ctx context.Context) bool {
	ok := p.probe(ctx)

	was := p.healthy.Swap(ok)
	first := !p.checked.Swap(true)
	if first || was != ok {
		if ok {
			p.logger.Info("upstream healthy", "upstream", p.Name, "url", p.Target.String())
		} else {
			p.logger.Warn("upstream unhealthy", "upstream", p.Name, "url", p.Target.String())
		}
	}

	v := 0.0
	if ok {
		v = 1
	}
	metrics.UpstreamUp.WithLabelValues(p.Name).Set(v)
	return ok
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Target.String(), nil)
	if err != nil {
		p.logger.Error("building health request", "error", err)
		return false
	}
	req.Header.Set("User-Agent", "giffly-gateway/healthcheck")

	start := time.Now()
	resp, err := p.Client.Do(req)
	if err != nil {
		p.logger.Debug("health check failed", "upstream", p.Name, "error", err)
		return false
	}
	resp.Body.Close()

	p.logger.Debug("health check",
		"upstream", p.Name,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Healthy reports the result of the most recent check.
func (p *Prober) Healthy() bool {
	return p.healthy.Load()
}

type status struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// ServeHTTP reports the last known upstream state as JSON.
func (p *Prober) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := status{Status: "healthy", Upstream: p.Name}
	code := http.StatusOK
	if !p.Healthy() {
		s.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(s)
}
