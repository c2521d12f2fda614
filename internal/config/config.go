package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Praj460/PowerPulse-AI/internal/alerting"
	"github.com/Praj460/PowerPulse-AI/internal/diag"
	"github.com/Praj460/PowerPulse-AI/internal/recommend"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
)

type ServiceConfig struct {
	Name     string `yaml:"name"`
	HTTPAddr string `yaml:"http_addr"`
}

type NATSConfig struct {
	URL              string `yaml:"url"`
	SubjectTelemetry string `yaml:"subject_telemetry"`
	SubjectHealth    string `yaml:"subject_health"`
	SubjectAlerts    string `yaml:"subject_alerts"`
	SubjectControl   string `yaml:"subject_control"`
	QueueGroup       string `yaml:"queue_group"`
}

type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisAddr  string `yaml:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type RunnerConfig struct {
	HistoryLimit         int `yaml:"history_limit"`
	ReviewIntervalCycles int `yaml:"review_interval_cycles"`
}

type NotifyConfig struct {
	WebhookURL          string `yaml:"webhook_url"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	BreakerMaxFailures  int    `yaml:"breaker_max_failures"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds"`
}

type MonitorConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	Service       ServiceConfig    `yaml:"service"`
	NATS          NATSConfig       `yaml:"nats"`
	Storage       StorageConfig    `yaml:"storage"`
	Monitor       RunnerConfig     `yaml:"monitor"`
	Device        sim.Params       `yaml:"device"`
	Diagnostics   diag.Config      `yaml:"diagnostics"`
	Alerting      alerting.Config  `yaml:"alerting"`
	Recommend     recommend.Config `yaml:"recommend"`
	Notify        NotifyConfig     `yaml:"notify"`
	Timeout       time.Duration    `yaml:"-"`
}

type APIConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Service       ServiceConfig `yaml:"service"`
	NATS          NATSConfig    `yaml:"nats"`
	Storage       StorageConfig `yaml:"storage"`
	Cache         CacheConfig   `yaml:"cache"`
	Device        sim.Params    `yaml:"device"`
	Timeout       time.Duration `yaml:"-"`
}

// LoadMonitor reads the monitord configuration. Engine sections start
// from their package defaults, so the YAML only needs to override what
// differs from stock calibration.
func LoadMonitor(path string) (*MonitorConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := MonitorConfig{
		Device:      sim.DefaultParams(),
		Diagnostics: diag.DefaultConfig(),
		Alerting:    alerting.DefaultConfig(),
		Recommend:   recommend.DefaultConfig(),
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Service.HTTPAddr == "" {
		return nil, fmt.Errorf("service.http_addr is required")
	}
	if cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "monitord"
	}

	applyNATSDefaults(&cfg.NATS)
	if cfg.Monitor.HistoryLimit <= 0 {
		cfg.Monitor.HistoryLimit = 64
	}
	if cfg.Monitor.ReviewIntervalCycles <= 0 {
		cfg.Monitor.ReviewIntervalCycles = 20
	}
	if cfg.Notify.TimeoutSeconds <= 0 {
		cfg.Notify.TimeoutSeconds = 5
	}
	if cfg.Notify.BreakerMaxFailures <= 0 {
		cfg.Notify.BreakerMaxFailures = 5
	}
	if cfg.Notify.BreakerResetSeconds <= 0 {
		cfg.Notify.BreakerResetSeconds = 30
	}

	cfg.Timeout = 10 * time.Second
	return &cfg, nil
}

// LoadAPI reads the apiserver configuration.
func LoadAPI(path string) (*APIConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := APIConfig{
		Device: sim.DefaultParams(),
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Service.HTTPAddr == "" {
		return nil, fmt.Errorf("service.http_addr is required")
	}
	if cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "apiserver"
	}

	applyNATSDefaults(&cfg.NATS)
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 10
	}

	cfg.Timeout = 10 * time.Second
	return &cfg, nil
}

func applyNATSDefaults(n *NATSConfig) {
	if n.URL == "" {
		n.URL = "nats://localhost:4222"
	}
	if n.SubjectTelemetry == "" {
		n.SubjectTelemetry = "powerpulse.telemetry"
	}
	if n.SubjectHealth == "" {
		n.SubjectHealth = "powerpulse.health"
	}
	if n.SubjectAlerts == "" {
		n.SubjectAlerts = "powerpulse.alerts"
	}
	if n.SubjectControl == "" {
		n.SubjectControl = "powerpulse.control"
	}
	if n.QueueGroup == "" {
		n.QueueGroup = "monitord"
	}
}
