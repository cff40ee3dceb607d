package cli

import (
	"context"
	"testing"
	"time"

	"tgmon/internal/config"
)

func validBase() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Path: "./tgmon.db"},
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if err := validateConfig(ctx, validBase()); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}

	cfg := validBase()
	cfg.Storage.Path = ""
	if err := validateConfig(ctx, cfg); err == nil {
		t.Fatal("missing storage path must be rejected")
	}

	cfg = validBase()
	cfg.Monitor.SendMinDelay = "soon"
	if err := validateConfig(ctx, cfg); err == nil {
		t.Fatal("bad duration must be rejected")
	}

	cfg = validBase()
	cfg.Heartbeat = &config.HeartbeatConfig{Enabled: true, Schedule: "not a cron spec"}
	if err := validateConfig(ctx, cfg); err == nil {
		t.Fatal("bad cron schedule must be rejected")
	}

	cfg = validBase()
	cfg.Heartbeat = &config.HeartbeatConfig{Enabled: true, Schedule: "*/5 * * * *"}
	if err := validateConfig(ctx, cfg); err != nil {
		t.Fatalf("valid cron schedule rejected: %v", err)
	}
}

func TestFleetConfig(t *testing.T) {
	t.Parallel()

	cfg := validBase()
	cfg.Monitor.SendMinDelay = "150ms"
	cfg.Monitor.SendMaxDelay = "400ms"
	cfg.Monitor.ReplyLookupPerSec = 3
	cfg.Heartbeat = &config.HeartbeatConfig{Enabled: true}

	fc, err := fleetConfig(cfg)
	if err != nil {
		t.Fatalf("fleetConfig: %v", err)
	}
	if fc.SendMinDelay != 150*time.Millisecond || fc.SendMaxDelay != 400*time.Millisecond {
		t.Fatalf("delays = %v/%v", fc.SendMinDelay, fc.SendMaxDelay)
	}
	if fc.ReplyLookupPerSec != 3 {
		t.Fatalf("ReplyLookupPerSec = %d", fc.ReplyLookupPerSec)
	}
	// Enabled heartbeat without a schedule falls back to hourly.
	if fc.HeartbeatSchedule != "0 * * * *" {
		t.Fatalf("HeartbeatSchedule = %q", fc.HeartbeatSchedule)
	}

	cfg.Heartbeat = nil
	fc, err = fleetConfig(cfg)
	if err != nil {
		t.Fatalf("fleetConfig: %v", err)
	}
	if fc.HeartbeatSchedule != "" {
		t.Fatalf("disabled heartbeat must produce no schedule, got %q", fc.HeartbeatSchedule)
	}
}
