package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/goodtune/giffly-gateway/internal/cors"
	"github.com/goodtune/giffly-gateway/internal/route"
)

type Config struct {
	ListenAddr  string
	MetricsAddr string
	BackendURL  *url.URL
	StaticRoot  string
	MediaRoot   string
	RoutesFile  string

	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	CORSMaxAge       time.Duration

	TrustedProxies  []string
	UpstreamTimeout time.Duration

	HealthCheckPath     string
	HealthCheckInterval time.Duration

	LogTarget string
	LogLevel  string
}

// Load reads configuration from the environment, after merging any .env file
// in the working directory. Variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	backend, err := parseURL("BACKEND_URL", getEnv("BACKEND_URL", "http://backend:8000"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:  getEnv("GATEWAY_LISTEN", ":80"),
		MetricsAddr: getEnv("GATEWAY_METRICS", ":9180"),
		BackendURL:  backend,
		StaticRoot:  getEnv("STATIC_ROOT", "/app/staticfiles"),
		MediaRoot:   getEnv("MEDIA_ROOT", "/app/media"),
		RoutesFile:  getEnv("ROUTES_FILE", ""),

		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", cors.DefaultOrigins),
		AllowedMethods:   getEnvList("CORS_ALLOWED_METHODS", cors.DefaultMethods),
		AllowedHeaders:   getEnvList("CORS_ALLOWED_HEADERS", cors.DefaultHeaders),
		AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAge:       time.Duration(getEnvInt("CORS_MAX_AGE", 86400)) * time.Second,

		TrustedProxies:  getEnvList("TRUSTED_PROXIES", nil),
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT", 60)) * time.Second,

		HealthCheckPath:     getEnv("HEALTH_CHECK_PATH", "/api/health/"),
		HealthCheckInterval: time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL", 30)) * time.Second,

		LogTarget: getEnv("LOG_TARGET", "stderr"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	if cfg.RoutesFile == "" {
		if cfg.StaticRoot == "" || cfg.MediaRoot == "" {
			return nil, fmt.Errorf("STATIC_ROOT and MEDIA_ROOT are required with the built-in route table")
		}
	}
	if !strings.HasPrefix(cfg.HealthCheckPath, "/") {
		return nil, fmt.Errorf("HEALTH_CHECK_PATH must start with /: %q", cfg.HealthCheckPath)
	}
	switch cfg.LogTarget {
	case "stderr", "syslog":
	default:
		return nil, fmt.Errorf("LOG_TARGET must be stderr or syslog, got %q", cfg.LogTarget)
	}

	return cfg, nil
}

// Upstreams returns the named upstreams known from the environment.
func (c *Config) Upstreams() map[string]*url.URL {
	return map[string]*url.URL{route.BackendUpstream: c.BackendURL}
}

// Table builds the route table, from ROUTES_FILE when set.
func (c *Config) Table() (*route.Table, error) {
	if c.RoutesFile == "" {
		return route.NewTable(c.Upstreams(), route.Default(c.StaticRoot, c.MediaRoot))
	}
	f, err := route.LoadFile(c.RoutesFile)
	if err != nil {
		return nil, err
	}
	return f.Table(c.Upstreams())
}

// CORSPolicy builds the immutable CORS policy.
func (c *Config) CORSPolicy() cors.Policy {
	return cors.NewPolicy(c.AllowedOrigins, c.AllowedMethods, c.AllowedHeaders, c.AllowCredentials, c.CORSMaxAge)
}

// HealthURL is the backend endpoint polled by the health prober.
func (c *Config) HealthURL() *url.URL {
	return c.BackendURL.JoinPath(c.HealthCheckPath)
}

func parseURL(key, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s: scheme must be http or https, got %q", key, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%s: host is required, got %q", key, raw)
	}
	return u, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable. An unset variable yields
// fallback; a set but empty one yields nil.
func getEnvList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
