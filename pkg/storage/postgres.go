package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

// Storage provides database operations for PowerPulse
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance
func New(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for readiness checks
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertConverter registers a converter or refreshes its last seen time
func (s *Storage) UpsertConverter(ctx context.Context, converterID string, seenAt time.Time) error {
	query := `
		INSERT INTO converters (converter_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (converter_id) DO UPDATE
		SET last_seen_at = GREATEST(converters.last_seen_at, EXCLUDED.last_seen_at)
	`
	_, err := s.db.ExecContext(ctx, query, converterID, seenAt)
	return err
}

// StoreSample stores one evaluated operating point
func (s *Storage) StoreSample(ctx context.Context, converterID string, sample dab.Sample) error {
	query := `
		INSERT INTO samples (
			converter_id, ts_unix_ns,
			vdc1, vdc2, phase_shift, delta1, delta2, pload, switching_frequency,
			efficiency, conduction_loss, switching_loss, total_loss,
			junction_temp, power_transfer, zvs_primary, zvs_secondary, zvs_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (converter_id, ts_unix_ns) DO UPDATE
		SET efficiency = EXCLUDED.efficiency,
		    conduction_loss = EXCLUDED.conduction_loss,
		    switching_loss = EXCLUDED.switching_loss,
		    total_loss = EXCLUDED.total_loss,
		    junction_temp = EXCLUDED.junction_temp,
		    power_transfer = EXCLUDED.power_transfer,
		    zvs_primary = EXCLUDED.zvs_primary,
		    zvs_secondary = EXCLUDED.zvs_secondary,
		    zvs_status = EXCLUDED.zvs_status
	`
	p, r := sample.Point, sample.Result
	_, err := s.db.ExecContext(ctx, query,
		converterID, p.TsUnixNs,
		p.Vdc1, p.Vdc2, p.PhaseShift, p.Delta1, p.Delta2, p.Pload, p.SwitchingFreq,
		r.Efficiency, r.ConductionLoss, r.SwitchingLoss, r.TotalLoss,
		r.JunctionTemp, r.PowerTransfer, r.ZVSLegs.Primary, r.ZVSLegs.Secondary, string(r.ZVSStatus),
	)
	return err
}

// StoreHealthRecord stores a health record and its anomalies atomically
func (s *Storage) StoreHealthRecord(ctx context.Context, rec dab.HealthRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO health_records (
			converter_id, ts_unix_ns, health_score,
			score_efficiency, score_thermal, score_zvs, score_loss_trend,
			trend, window_size, anomaly_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (converter_id, ts_unix_ns) DO UPDATE
		SET health_score = EXCLUDED.health_score,
		    score_efficiency = EXCLUDED.score_efficiency,
		    score_thermal = EXCLUDED.score_thermal,
		    score_zvs = EXCLUDED.score_zvs,
		    score_loss_trend = EXCLUDED.score_loss_trend,
		    trend = EXCLUDED.trend,
		    window_size = EXCLUDED.window_size,
		    anomaly_count = EXCLUDED.anomaly_count
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ConverterID, rec.TsUnixNs, rec.HealthScore,
		rec.Components.Efficiency, rec.Components.Thermal,
		rec.Components.ZVS, rec.Components.LossTrend,
		string(rec.Trend), rec.WindowSize, len(rec.Anomalies),
	)
	if err != nil {
		return fmt.Errorf("insert health record: %w", err)
	}

	if len(rec.Anomalies) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO anomalies (converter_id, ts_unix_ns, kind, quantity, value, zscore, confidence, severity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, a := range rec.Anomalies {
			_, err := stmt.ExecContext(ctx,
				rec.ConverterID, rec.TsUnixNs, string(a.Kind), a.Quantity,
				a.Value, a.ZScore, a.Confidence, string(a.Severity),
			)
			if err != nil {
				return fmt.Errorf("insert anomaly: %w", err)
			}
		}
	}

	return tx.Commit()
}

// UpsertAlert writes the full alert row, replacing any previous state
func (s *Storage) UpsertAlert(ctx context.Context, a dab.Alert) error {
	query := `
		INSERT INTO alerts (
			alert_id, converter_id, kind, quantity, severity, state, message,
			value, threshold, raised_at, updated_at,
			acknowledged_at, acknowledged_by, resolved_at,
			last_notified_at, cooldown_until
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (alert_id) DO UPDATE
		SET severity = EXCLUDED.severity,
		    state = EXCLUDED.state,
		    message = EXCLUDED.message,
		    value = EXCLUDED.value,
		    threshold = EXCLUDED.threshold,
		    updated_at = EXCLUDED.updated_at,
		    acknowledged_at = EXCLUDED.acknowledged_at,
		    acknowledged_by = EXCLUDED.acknowledged_by,
		    resolved_at = EXCLUDED.resolved_at,
		    last_notified_at = EXCLUDED.last_notified_at,
		    cooldown_until = EXCLUDED.cooldown_until
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.ConverterID, string(a.Kind), a.Quantity, string(a.Severity), string(a.State), a.Message,
		a.Value, a.Threshold, a.RaisedAt, a.UpdatedAt,
		a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt,
		a.LastNotifiedAt, a.CooldownUntil,
	)
	return err
}

// StoreRecommendations stores a batch of recommendations
func (s *Storage) StoreRecommendations(ctx context.Context, recs []dab.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendations (
			rec_id, converter_id, alert_id, objective, changes, predicted,
			baseline_efficiency, impact_score, confidence, status, rank, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (rec_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		changes, err := json.Marshal(rec.Changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
		predicted, err := json.Marshal(rec.Predicted)
		if err != nil {
			return fmt.Errorf("marshal predicted: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			rec.ID, rec.ConverterID, rec.AlertID, string(rec.Objective), changes, predicted,
			rec.BaselineEfficiency, rec.ImpactScore, rec.Confidence,
			string(rec.Status), rec.Rank, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateRecommendationStatus moves a proposed recommendation to a terminal
// status. Returns false when the row exists but is no longer proposed.
func (s *Storage) UpdateRecommendationStatus(ctx context.Context, recID string, status dab.RecommendationStatus) (bool, error) {
	query := `UPDATE recommendations SET status = $2 WHERE rec_id = $1 AND status = $3`
	res, err := s.db.ExecContext(ctx, query, recID, string(status), string(dab.RecProposed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListConverters returns all known converters, most recently seen first
func (s *Storage) ListConverters(ctx context.Context) ([]Converter, error) {
	query := `SELECT converter_id, label, first_seen_at, last_seen_at FROM converters ORDER BY last_seen_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var converters []Converter
	for rows.Next() {
		var c Converter
		if err := rows.Scan(&c.ConverterID, &c.Label, &c.FirstSeenAt, &c.LastSeenAt); err != nil {
			return nil, err
		}
		converters = append(converters, c)
	}

	return converters, rows.Err()
}

// GetSampleSeries returns evaluated samples for a converter within a time range
func (s *Storage) GetSampleSeries(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]dab.Sample, error) {
	query := `
		SELECT ts_unix_ns, vdc1, vdc2, phase_shift, delta1, delta2, pload, switching_frequency,
		       efficiency, conduction_loss, switching_loss, total_loss,
		       junction_temp, power_transfer, zvs_primary, zvs_secondary, zvs_status
		FROM samples
		WHERE converter_id = $1` + rangeClause(fromUnixNs, toUnixNs) + `
		ORDER BY ts_unix_ns ASC
	`
	rows, err := s.db.QueryContext(ctx, query, rangeArgs(converterID, fromUnixNs, toUnixNs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []dab.Sample
	for rows.Next() {
		var sm dab.Sample
		var status string
		err := rows.Scan(
			&sm.Point.TsUnixNs, &sm.Point.Vdc1, &sm.Point.Vdc2, &sm.Point.PhaseShift,
			&sm.Point.Delta1, &sm.Point.Delta2, &sm.Point.Pload, &sm.Point.SwitchingFreq,
			&sm.Result.Efficiency, &sm.Result.ConductionLoss, &sm.Result.SwitchingLoss,
			&sm.Result.TotalLoss, &sm.Result.JunctionTemp, &sm.Result.PowerTransfer,
			&sm.Result.ZVSLegs.Primary, &sm.Result.ZVSLegs.Secondary, &status,
		)
		if err != nil {
			return nil, err
		}
		sm.Result.ZVSStatus = dab.ZVSStatus(status)
		samples = append(samples, sm)
	}

	return samples, rows.Err()
}

// GetHealthSeries returns the health score series for a converter
func (s *Storage) GetHealthSeries(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]HealthPoint, error) {
	query := `
		SELECT converter_id, ts_unix_ns, health_score,
		       score_efficiency, score_thermal, score_zvs, score_loss_trend,
		       trend, window_size, anomaly_count
		FROM health_records
		WHERE converter_id = $1` + rangeClause(fromUnixNs, toUnixNs) + `
		ORDER BY ts_unix_ns ASC
	`
	rows, err := s.db.QueryContext(ctx, query, rangeArgs(converterID, fromUnixNs, toUnixNs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []HealthPoint
	for rows.Next() {
		var hp HealthPoint
		err := rows.Scan(
			&hp.ConverterID, &hp.TsUnixNs, &hp.HealthScore,
			&hp.Efficiency, &hp.Thermal, &hp.ZVS, &hp.LossTrend,
			&hp.Trend, &hp.WindowSize, &hp.AnomalyCount,
		)
		if err != nil {
			return nil, err
		}
		points = append(points, hp)
	}

	return points, rows.Err()
}

// GetLatestHealth returns the most recent health point for a converter
func (s *Storage) GetLatestHealth(ctx context.Context, converterID string) (HealthPoint, error) {
	query := `
		SELECT converter_id, ts_unix_ns, health_score,
		       score_efficiency, score_thermal, score_zvs, score_loss_trend,
		       trend, window_size, anomaly_count
		FROM health_records
		WHERE converter_id = $1
		ORDER BY ts_unix_ns DESC
		LIMIT 1
	`
	var hp HealthPoint
	err := s.db.QueryRowContext(ctx, query, converterID).Scan(
		&hp.ConverterID, &hp.TsUnixNs, &hp.HealthScore,
		&hp.Efficiency, &hp.Thermal, &hp.ZVS, &hp.LossTrend,
		&hp.Trend, &hp.WindowSize, &hp.AnomalyCount,
	)
	if err != nil {
		return HealthPoint{}, err
	}
	return hp, nil
}

// GetAnomalies returns the anomaly log for a converter within a time range
func (s *Storage) GetAnomalies(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]AnomalyRow, error) {
	query := `
		SELECT id, converter_id, ts_unix_ns, kind, quantity, value, zscore, confidence, severity, created_at
		FROM anomalies
		WHERE converter_id = $1` + rangeClause(fromUnixNs, toUnixNs) + `
		ORDER BY ts_unix_ns ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, rangeArgs(converterID, fromUnixNs, toUnixNs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []AnomalyRow
	for rows.Next() {
		var a AnomalyRow
		err := rows.Scan(
			&a.ID, &a.ConverterID, &a.TsUnixNs, &a.Kind, &a.Quantity,
			&a.Value, &a.ZScore, &a.Confidence, &a.Severity, &a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}

	return anomalies, rows.Err()
}

// ListAlerts returns alerts for a converter, optionally filtered by state,
// most recently raised first
func (s *Storage) ListAlerts(ctx context.Context, converterID string, state string) ([]dab.Alert, error) {
	query := `
		SELECT alert_id, converter_id, kind, quantity, severity, state, message,
		       value, threshold, raised_at, updated_at,
		       acknowledged_at, acknowledged_by, resolved_at,
		       last_notified_at, cooldown_until
		FROM alerts
		WHERE converter_id = $1
	`
	args := []interface{}{converterID}
	if state != "" {
		query += ` AND state = $2`
		args = append(args, state)
	}
	query += ` ORDER BY raised_at DESC, alert_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []dab.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// GetAlert returns a single alert by id
func (s *Storage) GetAlert(ctx context.Context, alertID string) (dab.Alert, error) {
	query := `
		SELECT alert_id, converter_id, kind, quantity, severity, state, message,
		       value, threshold, raised_at, updated_at,
		       acknowledged_at, acknowledged_by, resolved_at,
		       last_notified_at, cooldown_until
		FROM alerts
		WHERE alert_id = $1
	`
	return scanAlert(s.db.QueryRowContext(ctx, query, alertID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (dab.Alert, error) {
	var a dab.Alert
	var kind, severity, state string
	var ackedAt, resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.ConverterID, &kind, &a.Quantity, &severity, &state, &a.Message,
		&a.Value, &a.Threshold, &a.RaisedAt, &a.UpdatedAt,
		&ackedAt, &a.AcknowledgedBy, &resolvedAt,
		&a.LastNotifiedAt, &a.CooldownUntil,
	)
	if err != nil {
		return dab.Alert{}, err
	}
	a.Kind = dab.AlertKind(kind)
	a.Severity = dab.Severity(severity)
	a.State = dab.AlertState(state)
	if ackedAt.Valid {
		a.AcknowledgedAt = &ackedAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return a, nil
}

// ListRecommendations returns recommendations for a converter, optionally
// filtered by status, newest first then by rank
func (s *Storage) ListRecommendations(ctx context.Context, converterID string, status string) ([]dab.Recommendation, error) {
	query := `
		SELECT rec_id, converter_id, alert_id, objective, changes, predicted,
		       baseline_efficiency, impact_score, confidence, status, rank, created_at
		FROM recommendations
		WHERE converter_id = $1
	`
	args := []interface{}{converterID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, rank ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []dab.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// GetRecommendation returns a single recommendation by id
func (s *Storage) GetRecommendation(ctx context.Context, recID string) (dab.Recommendation, error) {
	query := `
		SELECT rec_id, converter_id, alert_id, objective, changes, predicted,
		       baseline_efficiency, impact_score, confidence, status, rank, created_at
		FROM recommendations
		WHERE rec_id = $1
	`
	return scanRecommendation(s.db.QueryRowContext(ctx, query, recID))
}

func scanRecommendation(row rowScanner) (dab.Recommendation, error) {
	var rec dab.Recommendation
	var objective, status string
	var changes, predicted []byte
	err := row.Scan(
		&rec.ID, &rec.ConverterID, &rec.AlertID, &objective, &changes, &predicted,
		&rec.BaselineEfficiency, &rec.ImpactScore, &rec.Confidence,
		&status, &rec.Rank, &rec.CreatedAt,
	)
	if err != nil {
		return dab.Recommendation{}, err
	}
	rec.Objective = dab.Objective(objective)
	rec.Status = dab.RecommendationStatus(status)
	if err := json.Unmarshal(changes, &rec.Changes); err != nil {
		return dab.Recommendation{}, fmt.Errorf("unmarshal changes: %w", err)
	}
	if err := json.Unmarshal(predicted, &rec.Predicted); err != nil {
		return dab.Recommendation{}, fmt.Errorf("unmarshal predicted: %w", err)
	}
	return rec, nil
}

func rangeClause(fromUnixNs, toUnixNs *int64) string {
	switch {
	case fromUnixNs != nil && toUnixNs != nil:
		return ` AND ts_unix_ns >= $2 AND ts_unix_ns <= $3`
	case fromUnixNs != nil:
		return ` AND ts_unix_ns >= $2`
	case toUnixNs != nil:
		return ` AND ts_unix_ns <= $2`
	}
	return ``
}

func rangeArgs(converterID string, fromUnixNs, toUnixNs *int64) []interface{} {
	args := []interface{}{converterID}
	if fromUnixNs != nil {
		args = append(args, *fromUnixNs)
	}
	if toUnixNs != nil {
		args = append(args, *toUnixNs)
	}
	return args
}
