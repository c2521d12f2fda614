// Package alerting advances per-converter alert state machines from
// health records: tiered thresholds, sustained trend, anomaly and ZVS
// loss conditions, with cooldown-gated notification and dwell-based
// resolution.
package alerting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

var ErrAlertNotFound = errors.New("alert not found")

type Tier struct {
	Direction string  `yaml:"direction" json:"direction"`
	Warning   float64 `yaml:"warning" json:"warning"`
	Critical  float64 `yaml:"critical" json:"critical"`
	Emergency float64 `yaml:"emergency" json:"emergency"`
}

func (t Tier) validate(name string) error {
	switch t.Direction {
	case "low":
		if !(t.Warning > t.Critical && t.Critical > t.Emergency) {
			return &dab.ConfigError{Section: "alerting", Reason: name + ": low-direction tiers must descend warning > critical > emergency"}
		}
	case "high":
		if !(t.Warning < t.Critical && t.Critical < t.Emergency) {
			return &dab.ConfigError{Section: "alerting", Reason: name + ": high-direction tiers must ascend warning < critical < emergency"}
		}
	default:
		return &dab.ConfigError{Section: "alerting", Reason: name + ": direction must be low or high"}
	}
	return nil
}

type Config struct {
	CooldownSeconds        int     `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	ResolveDwellSeconds    int     `yaml:"resolve_dwell_seconds" json:"resolve_dwell_seconds"`
	TrendSustain           int     `yaml:"trend_sustain" json:"trend_sustain"`
	AnomalyConfidenceFloor float64 `yaml:"anomaly_confidence_floor" json:"anomaly_confidence_floor"`
	Efficiency             Tier    `yaml:"efficiency" json:"efficiency"`
	Temperature            Tier    `yaml:"temperature" json:"temperature"`
	Health                 Tier    `yaml:"health" json:"health"`
}

func DefaultConfig() Config {
	return Config{
		CooldownSeconds:        300,
		ResolveDwellSeconds:    180,
		TrendSustain:           3,
		AnomalyConfidenceFloor: 0.5,
		Efficiency:             Tier{Direction: "low", Warning: 0.95, Critical: 0.90, Emergency: 0.85},
		Temperature:            Tier{Direction: "high", Warning: 60, Critical: 70, Emergency: 80},
		Health:                 Tier{Direction: "low", Warning: 80, Critical: 60, Emergency: 40},
	}
}

func (c Config) validate() error {
	switch {
	case c.CooldownSeconds <= 0:
		return &dab.ConfigError{Section: "alerting", Reason: "cooldown_seconds must be positive"}
	case c.ResolveDwellSeconds <= 0:
		return &dab.ConfigError{Section: "alerting", Reason: "resolve_dwell_seconds must be positive"}
	case c.TrendSustain < 1:
		return &dab.ConfigError{Section: "alerting", Reason: "trend_sustain must be at least 1"}
	case c.AnomalyConfidenceFloor < 0 || c.AnomalyConfidenceFloor > 1:
		return &dab.ConfigError{Section: "alerting", Reason: "anomaly_confidence_floor must be in [0, 1]"}
	}
	if err := c.Efficiency.validate("efficiency"); err != nil {
		return err
	}
	if err := c.Temperature.validate("temperature"); err != nil {
		return err
	}
	return c.Health.validate("health")
}

type Engine struct {
	cfg      Config
	cooldown time.Duration
	dwell    time.Duration
	newID    func() string
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		cooldown: time.Duration(cfg.CooldownSeconds) * time.Second,
		dwell:    time.Duration(cfg.ResolveDwellSeconds) * time.Second,
		newID:    uuid.NewString,
	}, nil
}

// Result carries everything one evaluation changed. Notifications have
// their cooldown bookkeeping already committed; dispatching them later
// cannot cause a duplicate inside the cooldown window.
type Result struct {
	Notifications []dab.Notification
	Changed       []dab.Alert
}

type breach struct {
	key       dab.AlertKey
	severity  dab.Severity
	value     float64
	threshold float64
	message   string
}

// Evaluate advances every keyed state machine using the record timestamp
// as the clock, so a fixed record sequence reproduces the same state and
// notification sequence.
func (e *Engine) Evaluate(store *Store, rec *dab.HealthRecord) Result {
	now := time.Unix(0, rec.TsUnixNs).UTC()
	var res Result

	breaches := e.collect(store, rec)
	seen := map[dab.AlertKey]bool{}
	for _, b := range breaches {
		seen[b.key] = true
		e.applyBreach(store, b, now, &res)
	}

	for _, key := range store.sortedKeys() {
		if seen[key] {
			continue
		}
		e.applyClear(store, key, now, &res)
	}
	return res
}

func (e *Engine) collect(store *Store, rec *dab.HealthRecord) []breach {
	var out []breach
	result := rec.Sample.Result

	if sev, thr, ok := tierBreach(e.cfg.Efficiency, result.Efficiency); ok {
		out = append(out, breach{
			key:       dab.AlertKey{Kind: dab.KindThreshold, Quantity: dab.QuantityEfficiency},
			severity:  sev,
			value:     result.Efficiency,
			threshold: thr,
			message:   fmt.Sprintf("efficiency %.4f breached the %.4f limit", result.Efficiency, thr),
		})
	}
	if sev, thr, ok := tierBreach(e.cfg.Temperature, result.JunctionTemp); ok {
		out = append(out, breach{
			key:       dab.AlertKey{Kind: dab.KindThreshold, Quantity: dab.QuantityTemperature},
			severity:  sev,
			value:     result.JunctionTemp,
			threshold: thr,
			message:   fmt.Sprintf("junction temperature %.1f C breached the %.1f C limit", result.JunctionTemp, thr),
		})
	}
	if sev, thr, ok := tierBreach(e.cfg.Health, rec.HealthScore); ok {
		out = append(out, breach{
			key:       dab.AlertKey{Kind: dab.KindHealthDegradation, Quantity: dab.QuantityHealthScore},
			severity:  sev,
			value:     rec.HealthScore,
			threshold: thr,
			message:   fmt.Sprintf("health score %.1f breached the %.1f limit", rec.HealthScore, thr),
		})
	}

	if rec.Trend == dab.TrendDegrading {
		store.trendStreak++
	} else {
		store.trendStreak = 0
	}
	if store.trendStreak >= e.cfg.TrendSustain {
		out = append(out, breach{
			key:       dab.AlertKey{Kind: dab.KindTrend, Quantity: dab.QuantityHealthScore},
			severity:  dab.SeverityWarning,
			value:     rec.HealthScore,
			threshold: float64(e.cfg.TrendSustain),
			message:   fmt.Sprintf("health degrading for %d consecutive evaluations", store.trendStreak),
		})
	}

	if result.ZVSStatus != dab.ZVSFull {
		sev := dab.SeverityWarning
		if result.ZVSStatus == dab.ZVSNone {
			sev = dab.SeverityCritical
		}
		out = append(out, breach{
			key:       dab.AlertKey{Kind: dab.KindZVSLoss, Quantity: dab.QuantityZVS},
			severity:  sev,
			value:     float64(result.ZVSStatus.Rank()),
			threshold: float64(dab.ZVSFull.Rank()),
			message:   fmt.Sprintf("soft switching lost: %s", result.ZVSStatus),
		})
	}

	byKey := map[dab.AlertKey]int{}
	for _, a := range rec.Anomalies {
		if a.Confidence < e.cfg.AnomalyConfidenceFloor {
			continue
		}
		b := breach{
			key:       dab.AlertKey{Kind: dab.KindAnomaly, Quantity: a.Quantity},
			severity:  a.Severity,
			value:     a.Value,
			threshold: a.Confidence,
			message:   fmt.Sprintf("%s %s anomaly (z=%.1f, confidence %.2f)", a.Quantity, a.Kind, a.ZScore, a.Confidence),
		}
		if idx, ok := byKey[b.key]; ok {
			if b.severity.Rank() > out[idx].severity.Rank() {
				out[idx] = b
			}
			continue
		}
		out = append(out, b)
		byKey[b.key] = len(out) - 1
	}
	return out
}

func (e *Engine) applyBreach(store *Store, b breach, now time.Time, res *Result) {
	ent := store.entries[b.key]
	if ent == nil {
		alert := dab.Alert{
			ID:             e.newID(),
			ConverterID:    store.converterID,
			Kind:           b.key.Kind,
			Quantity:       b.key.Quantity,
			Severity:       b.severity,
			State:          dab.StateActive,
			Message:        b.message,
			Value:          b.value,
			Threshold:      b.threshold,
			RaisedAt:       now,
			UpdatedAt:      now,
			LastNotifiedAt: now,
			CooldownUntil:  now.Add(e.cooldown),
		}
		store.entries[b.key] = &entry{alert: alert}
		res.Changed = append(res.Changed, alert)
		res.Notifications = append(res.Notifications, e.notification(alert))
		return
	}

	a := &ent.alert
	ent.clearSince = time.Time{}
	a.Value = b.value
	a.UpdatedAt = now
	if b.severity.Rank() > a.Severity.Rank() {
		a.Severity = b.severity
		a.Threshold = b.threshold
		a.Message = b.message
	}

	if now.Before(a.CooldownUntil) {
		res.Changed = append(res.Changed, *a)
		return
	}
	eligible := a.State == dab.StateActive ||
		(a.State == dab.StateAcknowledged && a.Severity.Rank() > ent.severityAtAck.Rank())
	if eligible {
		a.LastNotifiedAt = now
		a.CooldownUntil = now.Add(e.cooldown)
		res.Notifications = append(res.Notifications, e.notification(*a))
	}
	res.Changed = append(res.Changed, *a)
}

func (e *Engine) applyClear(store *Store, key dab.AlertKey, now time.Time, res *Result) {
	ent := store.entries[key]
	a := &ent.alert

	if ent.clearSince.IsZero() {
		ent.clearSince = now
		a.UpdatedAt = now
		res.Changed = append(res.Changed, *a)
		return
	}
	if now.Sub(ent.clearSince) < e.dwell {
		return
	}

	resolvedAt := now
	a.State = dab.StateResolved
	a.ResolvedAt = &resolvedAt
	a.UpdatedAt = now
	res.Changed = append(res.Changed, *a)
	delete(store.entries, key)
}

// Acknowledge marks a live alert as seen by an operator. Further
// notifications for it are suppressed unless severity escalates past the
// severity it was acknowledged at.
func (e *Engine) Acknowledge(store *Store, alertID, who string, now time.Time) (dab.Alert, error) {
	ent := store.find(alertID)
	if ent == nil {
		return dab.Alert{}, ErrAlertNotFound
	}

	a := &ent.alert
	if a.State != dab.StateAcknowledged {
		ackAt := now
		a.State = dab.StateAcknowledged
		a.AcknowledgedAt = &ackAt
		a.AcknowledgedBy = who
		a.UpdatedAt = now
		ent.severityAtAck = a.Severity
	}
	return *a, nil
}

func tierBreach(t Tier, v float64) (dab.Severity, float64, bool) {
	if t.Direction == "low" {
		switch {
		case v <= t.Emergency:
			return dab.SeverityEmergency, t.Emergency, true
		case v <= t.Critical:
			return dab.SeverityCritical, t.Critical, true
		case v <= t.Warning:
			return dab.SeverityWarning, t.Warning, true
		}
		return "", 0, false
	}
	switch {
	case v >= t.Emergency:
		return dab.SeverityEmergency, t.Emergency, true
	case v >= t.Critical:
		return dab.SeverityCritical, t.Critical, true
	case v >= t.Warning:
		return dab.SeverityWarning, t.Warning, true
	}
	return "", 0, false
}

func (e *Engine) notification(a dab.Alert) dab.Notification {
	ctx := map[string]string{
		"converter_id": a.ConverterID,
		"kind":         string(a.Kind),
		"quantity":     a.Quantity,
		"severity":     string(a.Severity),
		"state":        string(a.State),
		"value":        strconv.FormatFloat(a.Value, 'g', -1, 64),
		"threshold":    strconv.FormatFloat(a.Threshold, 'g', -1, 64),
	}
	text := fmt.Sprintf("[%s] %s %s: %s",
		strings.ToUpper(string(a.Severity)), a.ConverterID, a.Kind, a.Message)
	return dab.Notification{Alert: a, Text: text, Context: ctx}
}
