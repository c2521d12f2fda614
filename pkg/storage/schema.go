package storage

import (
	"context"
	"fmt"
	"time"
)

// Converter represents a monitored dual active bridge unit
type Converter struct {
	ConverterID string    `json:"converter_id"`
	Label       string    `json:"label,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// HealthPoint is one row of the per-converter health series. Anomaly
// details live in their own table; the row carries only the count.
type HealthPoint struct {
	ConverterID  string  `json:"converter_id"`
	TsUnixNs     int64   `json:"ts_unix_ns"`
	HealthScore  float64 `json:"health_score"`
	Efficiency   float64 `json:"score_efficiency"`
	Thermal      float64 `json:"score_thermal"`
	ZVS          float64 `json:"score_zvs"`
	LossTrend    float64 `json:"score_loss_trend"`
	Trend        string  `json:"trend"`
	WindowSize   int     `json:"window_size"`
	AnomalyCount int     `json:"anomaly_count"`
}

// AnomalyRow is one detected anomaly in the event log
type AnomalyRow struct {
	ID          int64     `json:"id"`
	ConverterID string    `json:"converter_id"`
	TsUnixNs    int64     `json:"ts_unix_ns"`
	Kind        string    `json:"kind"`
	Quantity    string    `json:"quantity"`
	Value       float64   `json:"value"`
	ZScore      float64   `json:"zscore"`
	Confidence  float64   `json:"confidence"`
	Severity    string    `json:"severity"`
	CreatedAt   time.Time `json:"created_at"`
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS converters (
		converter_id  TEXT PRIMARY KEY,
		label         TEXT NOT NULL DEFAULT '',
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		converter_id        TEXT NOT NULL,
		ts_unix_ns          BIGINT NOT NULL,
		vdc1                DOUBLE PRECISION NOT NULL,
		vdc2                DOUBLE PRECISION NOT NULL,
		phase_shift         DOUBLE PRECISION NOT NULL,
		delta1              DOUBLE PRECISION NOT NULL,
		delta2              DOUBLE PRECISION NOT NULL,
		pload               DOUBLE PRECISION NOT NULL,
		switching_frequency DOUBLE PRECISION NOT NULL,
		efficiency          DOUBLE PRECISION NOT NULL,
		conduction_loss     DOUBLE PRECISION NOT NULL,
		switching_loss      DOUBLE PRECISION NOT NULL,
		total_loss          DOUBLE PRECISION NOT NULL,
		junction_temp       DOUBLE PRECISION NOT NULL,
		power_transfer      DOUBLE PRECISION NOT NULL,
		zvs_primary         BOOLEAN NOT NULL,
		zvs_secondary       BOOLEAN NOT NULL,
		zvs_status          TEXT NOT NULL,
		PRIMARY KEY (converter_id, ts_unix_ns)
	)`,
	`CREATE TABLE IF NOT EXISTS health_records (
		converter_id     TEXT NOT NULL,
		ts_unix_ns       BIGINT NOT NULL,
		health_score     DOUBLE PRECISION NOT NULL,
		score_efficiency DOUBLE PRECISION NOT NULL,
		score_thermal    DOUBLE PRECISION NOT NULL,
		score_zvs        DOUBLE PRECISION NOT NULL,
		score_loss_trend DOUBLE PRECISION NOT NULL,
		trend            TEXT NOT NULL,
		window_size      INTEGER NOT NULL,
		anomaly_count    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (converter_id, ts_unix_ns)
	)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id           BIGSERIAL PRIMARY KEY,
		converter_id TEXT NOT NULL,
		ts_unix_ns   BIGINT NOT NULL,
		kind         TEXT NOT NULL,
		quantity     TEXT NOT NULL,
		value        DOUBLE PRECISION NOT NULL,
		zscore       DOUBLE PRECISION NOT NULL,
		confidence   DOUBLE PRECISION NOT NULL,
		severity     TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS anomalies_converter_ts
		ON anomalies (converter_id, ts_unix_ns)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id         TEXT PRIMARY KEY,
		converter_id     TEXT NOT NULL,
		kind             TEXT NOT NULL,
		quantity         TEXT NOT NULL,
		severity         TEXT NOT NULL,
		state            TEXT NOT NULL,
		message          TEXT NOT NULL,
		value            DOUBLE PRECISION NOT NULL,
		threshold        DOUBLE PRECISION NOT NULL,
		raised_at        TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		acknowledged_at  TIMESTAMPTZ,
		acknowledged_by  TEXT NOT NULL DEFAULT '',
		resolved_at      TIMESTAMPTZ,
		last_notified_at TIMESTAMPTZ NOT NULL,
		cooldown_until   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_converter_state
		ON alerts (converter_id, state)`,
	`CREATE TABLE IF NOT EXISTS recommendations (
		rec_id              TEXT PRIMARY KEY,
		converter_id        TEXT NOT NULL,
		alert_id            TEXT NOT NULL DEFAULT '',
		objective           TEXT NOT NULL,
		changes             JSONB NOT NULL,
		predicted           JSONB NOT NULL,
		baseline_efficiency DOUBLE PRECISION NOT NULL,
		impact_score        DOUBLE PRECISION NOT NULL,
		confidence          DOUBLE PRECISION NOT NULL,
		status              TEXT NOT NULL,
		rank                INTEGER NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS recommendations_converter
		ON recommendations (converter_id, created_at DESC)`,
}

// EnsureSchema creates the tables and indexes if they do not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
