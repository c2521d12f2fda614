package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Praj460/PowerPulse-AI/internal/alerting"
	"github.com/Praj460/PowerPulse-AI/internal/diag"
	"github.com/Praj460/PowerPulse-AI/internal/recommend"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMonitorDevConfig(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "dev", "monitord.yaml")

	cfg, err := LoadMonitor(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Service.Name == "" {
		t.Error("service.name is empty")
	}
	if cfg.NATS.SubjectTelemetry == "" {
		t.Error("telemetry subject is empty")
	}
}

func TestLoadAPIDevConfig(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "dev", "apiserver.yaml")

	cfg, err := LoadAPI(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Service.HTTPAddr == "" {
		t.Error("service.http_addr is empty")
	}
}

func TestLoadMonitorAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
service:
  name: monitord
  http_addr: ":9301"
storage:
  postgres_dsn: "postgres://localhost/powerpulse?sslmode=disable"
`)

	cfg, err := LoadMonitor(path)
	if err != nil {
		t.Fatalf("LoadMonitor: %v", err)
	}

	if cfg.Device != sim.DefaultParams() {
		t.Error("device params do not match defaults")
	}
	if cfg.Diagnostics != diag.DefaultConfig() {
		t.Error("diagnostics config does not match defaults")
	}
	if cfg.Alerting != alerting.DefaultConfig() {
		t.Error("alerting config does not match defaults")
	}
	if cfg.Recommend != recommend.DefaultConfig() {
		t.Error("recommend config does not match defaults")
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.NATS.SubjectTelemetry != "powerpulse.telemetry" {
		t.Errorf("telemetry subject = %q", cfg.NATS.SubjectTelemetry)
	}
	if cfg.Monitor.HistoryLimit != 64 {
		t.Errorf("history limit = %d, want 64", cfg.Monitor.HistoryLimit)
	}
	if cfg.Monitor.ReviewIntervalCycles != 20 {
		t.Errorf("review interval = %d, want 20", cfg.Monitor.ReviewIntervalCycles)
	}
	if cfg.Notify.TimeoutSeconds != 5 {
		t.Errorf("notify timeout = %d, want 5", cfg.Notify.TimeoutSeconds)
	}
}

func TestLoadMonitorOverridesSelectedFields(t *testing.T) {
	path := writeConfig(t, `
service:
  name: monitord
  http_addr: ":9301"
storage:
  postgres_dsn: "postgres://localhost/powerpulse?sslmode=disable"
device:
  turns_ratio: 2.0
diagnostics:
  min_samples: 12
alerting:
  cooldown_seconds: 600
`)

	cfg, err := LoadMonitor(path)
	if err != nil {
		t.Fatalf("LoadMonitor: %v", err)
	}

	if cfg.Device.TurnsRatio != 2.0 {
		t.Errorf("turns ratio = %g, want 2.0", cfg.Device.TurnsRatio)
	}
	if cfg.Device.LeakageInductance != sim.DefaultParams().LeakageInductance {
		t.Error("untouched device field drifted from default")
	}
	if cfg.Diagnostics.MinSamples != 12 {
		t.Errorf("min samples = %d, want 12", cfg.Diagnostics.MinSamples)
	}
	if cfg.Diagnostics.AnomalyWindow != diag.DefaultConfig().AnomalyWindow {
		t.Error("untouched diagnostics field drifted from default")
	}
	if cfg.Alerting.CooldownSeconds != 600 {
		t.Errorf("cooldown = %d, want 600", cfg.Alerting.CooldownSeconds)
	}
}

func TestLoadMonitorRequiredFields(t *testing.T) {
	missingAddr := writeConfig(t, `
service:
  name: monitord
storage:
  postgres_dsn: "postgres://localhost/powerpulse"
`)
	if _, err := LoadMonitor(missingAddr); err == nil {
		t.Error("expected error for missing http_addr")
	}

	missingDSN := writeConfig(t, `
service:
  name: monitord
  http_addr: ":9301"
`)
	if _, err := LoadMonitor(missingDSN); err == nil {
		t.Error("expected error for missing postgres_dsn")
	}
}

func TestLoadAPIAppliesCacheDefaults(t *testing.T) {
	path := writeConfig(t, `
service:
  name: apiserver
  http_addr: ":8080"
storage:
  postgres_dsn: "postgres://localhost/powerpulse?sslmode=disable"
cache:
  enabled: true
`)

	cfg, err := LoadAPI(path)
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled")
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Cache.RedisAddr)
	}
	if cfg.Cache.TTLSeconds != 10 {
		t.Errorf("cache ttl = %d, want 10", cfg.Cache.TTLSeconds)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := LoadMonitor(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadAPI(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "service: [not, a, mapping")
	if _, err := LoadMonitor(path); err == nil {
		t.Error("expected parse error")
	}
}
