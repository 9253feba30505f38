package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/goodtune/giffly-gateway/internal/logging"
)

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	entry := logging.RequestEntry{
		RequestID:  "cv37q8p0s1f2ab3cdefg",
		ClientIP:   "192.168.1.1",
		Method:     "POST",
		Host:       "185.91.54.146",
		Path:       "/admin/login",
		Rule:       "admin",
		Upstream:   "http://backend:8000",
		StatusCode: 302,
		Duration:   150 * time.Millisecond,
		BytesSent:  1024,
		BytesRecv:  512,
	}

	logging.LogRequest(logger, entry)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON log output: %v", err)
	}

	checks := map[string]any{
		"request_id":     "cv37q8p0s1f2ab3cdefg",
		"client_ip":      "192.168.1.1",
		"method":         "POST",
		"host":           "185.91.54.146",
		"path":           "/admin/login",
		"rule":           "admin",
		"upstream":       "http://backend:8000",
		"status_code":    float64(302),
		"duration_ms":    float64(150),
		"bytes_sent":     float64(1024),
		"bytes_received": float64(512),
	}

	for k, want := range checks {
		got, ok := m[k]
		if !ok {
			t.Errorf("missing field %q in log output", k)
			continue
		}
		if got != want {
			t.Errorf("field %q: got %v, want %v", k, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelWarn)

	logger.Info("ignored")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn not written")
	}
}
