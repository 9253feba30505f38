package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goodtune/giffly-gateway/internal/config"
	"github.com/goodtune/giffly-gateway/internal/health"
	"github.com/goodtune/giffly-gateway/internal/logging"
	"github.com/goodtune/giffly-gateway/internal/metrics"
	"github.com/goodtune/giffly-gateway/internal/proxy"
	"github.com/goodtune/giffly-gateway/internal/realip"
	"github.com/goodtune/giffly-gateway/internal/route"
	"github.com/goodtune/giffly-gateway/internal/rxid"
)

// gateway holds everything main wires together.
type gateway struct {
	table   *route.Table
	handler http.Handler
	prober  *health.Prober
	metrics *http.ServeMux
}

func newGateway(cfg *config.Config, logger *slog.Logger) (*gateway, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("building route table: %w", err)
	}
	resolver, err := realip.NewResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	handler := proxy.NewHandler(table, cfg.CORSPolicy(), resolver, logger,
		proxy.WithUpstreamTimeout(cfg.UpstreamTimeout),
	)
	prober := health.NewProber(route.BackendUpstream, cfg.HealthURL(), cfg.HealthCheckInterval, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.Handle("/healthz", prober)

	return &gateway{
		table:   table,
		handler: rxid.Handler(handler),
		prober:  prober,
		metrics: metricsMux,
	}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(os.Stderr, level)
	if err != nil {
		logger.Warn("invalid LOG_LEVEL, using info", "error", err)
	}
	if cfg.LogTarget == "syslog" {
		sl, err := logging.NewSyslogLogger(level)
		if err != nil {
			logger.Warn("syslog unavailable, logging to stderr", "error", err)
			return logger
		}
		return sl
	}
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	listenAddr := flag.String("listen", cfg.ListenAddr, "gateway listen address")
	metricsAddr := flag.String("metrics", cfg.MetricsAddr, "metrics endpoint address")
	flag.Parse()

	logger := newLogger(cfg)

	gw, err := newGateway(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start gateway: %v\n", err)
		os.Exit(1)
	}
	for _, r := range gw.table.Rules() {
		target := r.Root
		if !r.IsFile() {
			target = gw.table.Upstream(r.Upstream).String() + r.Rewrite
		}
		logger.Info("route", "name", r.Name, "path", r.Path, "exact", r.Exact, "target", target, "preflight", r.Preflight)
	}

	metrics.Register()

	proxyServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       75 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              *metricsAddr,
		Handler:           gw.metrics,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	go gw.prober.Start(ctx)

	go func() {
		logger.Info("metrics server starting", "addr", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		logger.Info("gateway starting", "addr", *listenAddr, "backend", cfg.BackendURL.String())
		if err := proxyServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("gateway server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	proxyServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}
