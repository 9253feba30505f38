package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"strings"
	"time"
)

// RequestEntry holds all fields for a gateway access log line.
type RequestEntry struct {
	RequestID  string
	ClientIP   string
	Method     string
	Host       string
	Path       string
	Rule       string
	Upstream   string
	StatusCode int
	Duration   time.Duration
	BytesSent  int64
	BytesRecv  int64
}

// LogRequest logs a handled request with structured fields.
func LogRequest(logger *slog.Logger, e RequestEntry) {
	logger.Info("request",
		"request_id", e.RequestID,
		"client_ip", e.ClientIP,
		"method", e.Method,
		"host", e.Host,
		"path", e.Path,
		"rule", e.Rule,
		"upstream", e.Upstream,
		"status_code", e.StatusCode,
		"duration_ms", e.Duration.Milliseconds(),
		"bytes_sent", e.BytesSent,
		"bytes_received", e.BytesRecv,
	)
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a JSON logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewSyslogLogger creates an slog.Logger that writes JSON to syslog.
func NewSyslogLogger(level slog.Level) (*slog.Logger, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "giffly-gateway")
	if err != nil {
		return nil, err
	}
	return New(w, level), nil
}
