package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "tgmon.yaml", `
storage:
  path: ./tgmon.db
logging:
  level: debug
monitor:
  send_min_delay: 200ms
  send_max_delay: 300ms
  reply_lookup_per_sec: 3
heartbeat:
  enabled: true
  schedule: "0 * * * *"
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "./tgmon.db" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if !cfg.Logging.ConsoleEnabled() {
		t.Fatal("console should default to enabled")
	}
	if cfg.Monitor.ReplyLookupPerSec != 3 {
		t.Fatalf("reply_lookup_per_sec = %d", cfg.Monitor.ReplyLookupPerSec)
	}
	if cfg.Heartbeat == nil || !cfg.Heartbeat.Enabled {
		t.Fatal("heartbeat should be enabled")
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "tgmon.json", `{"storage":{"path":"x"},"logging":{},"bogus":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "tgmon.json", `{"storage":{"path":"x"}}{"again":true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "250ms", want: 250 * time.Millisecond},
		{raw: "2m", want: 2 * time.Minute},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("monitor.send_min_delay", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("telegram.poll_timeout", "", 10*time.Second)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault: %v", err)
	}
	if got != 10*time.Second {
		t.Fatalf("got %v, want default 10s", got)
	}
}
