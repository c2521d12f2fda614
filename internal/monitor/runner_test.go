package monitor

import (
	"testing"
	"time"

	"github.com/Praj460/PowerPulse-AI/internal/alerting"
	"github.com/Praj460/PowerPulse-AI/internal/config"
	"github.com/Praj460/PowerPulse-AI/internal/diag"
	"github.com/Praj460/PowerPulse-AI/internal/recommend"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := &config.MonitorConfig{
		Device:      sim.DefaultParams(),
		Diagnostics: diag.DefaultConfig(),
		Alerting:    alerting.DefaultConfig(),
		Recommend:   recommend.DefaultConfig(),
		Monitor:     config.RunnerConfig{HistoryLimit: 16, ReviewIntervalCycles: 5},
	}
	runner, err := newRunner(cfg, nil, nil)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	return runner
}

func measurementAt(converterID string, i int, phase, pload float64) dab.Measurement {
	return dab.Measurement{
		ConverterID: converterID,
		Point: dab.OperatingPoint{
			TsUnixNs:      int64(1700000000+i) * 1_000_000_000,
			Vdc1:          400,
			Vdc2:          48,
			PhaseShift:    phase,
			Delta1:        1.0,
			Delta2:        1.0,
			Pload:         pload,
			SwitchingFreq: 100000,
		},
	}
}

func TestHealthyStreamStaysQuiet(t *testing.T) {
	runner := newTestRunner(t)

	var last cycleOutput
	for i := 0; i < 12; i++ {
		out, err := runner.evaluate(measurementAt("dab-001", i, 0.3, 1000))
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if len(out.alerts.Notifications) != 0 {
			t.Fatalf("cycle %d: unexpected notifications: %+v", i, out.alerts.Notifications)
		}
		if len(out.recs) != 0 {
			t.Fatalf("cycle %d: unexpected recommendations", i)
		}
		last = out
	}

	if last.record.HealthScore < 80 {
		t.Errorf("health score = %g, want >= 80", last.record.HealthScore)
	}
	if last.record.Trend != dab.TrendStable {
		t.Errorf("trend = %s, want %s", last.record.Trend, dab.TrendStable)
	}
	if last.record.WindowSize != 12 {
		t.Errorf("window size = %d, want 12", last.record.WindowSize)
	}
}

func TestHistoryCappedAtLimit(t *testing.T) {
	runner := newTestRunner(t)

	for i := 0; i < 20; i++ {
		if _, err := runner.evaluate(measurementAt("dab-001", i, 0.3, 1000)); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	ent := runner.entity("dab-001")
	if len(ent.history) != 16 {
		t.Errorf("history length = %d, want 16", len(ent.history))
	}
	wantTs := int64(1700000000+19) * 1_000_000_000
	if got := ent.history[len(ent.history)-1].Point.TsUnixNs; got != wantTs {
		t.Errorf("newest sample ts = %d, want %d", got, wantTs)
	}
}

func TestDegradedCycleRaisesAlertsAndRecommends(t *testing.T) {
	runner := newTestRunner(t)

	out, err := runner.evaluate(measurementAt("dab-001", 0, 0.02, 100))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	wantKinds := []dab.AlertKind{dab.KindThreshold, dab.KindHealthDegradation, dab.KindZVSLoss}
	if len(out.alerts.Notifications) != len(wantKinds) {
		t.Fatalf("got %d notifications, want %d: %+v",
			len(out.alerts.Notifications), len(wantKinds), out.alerts.Notifications)
	}
	for i, n := range out.alerts.Notifications {
		if n.Alert.Kind != wantKinds[i] {
			t.Errorf("notification %d kind = %s, want %s", i, n.Alert.Kind, wantKinds[i])
		}
	}

	if len(out.recs) < 3 {
		t.Fatalf("got %d recommendations, want at least 3", len(out.recs))
	}
	objectives := map[dab.Objective]bool{}
	for _, rec := range out.recs {
		objectives[rec.Objective] = true
		if rec.AlertID == "" {
			t.Error("alert-driven recommendation missing alert id")
		}
		if rec.Status != dab.RecProposed {
			t.Errorf("status = %s, want %s", rec.Status, dab.RecProposed)
		}
	}
	if !objectives[dab.ObjectiveEfficiency] || !objectives[dab.ObjectiveZVS] {
		t.Errorf("objectives = %v, want efficiency and zvs covered", objectives)
	}
}

func TestReviewCadenceReproposesWithoutFreshAlert(t *testing.T) {
	runner := newTestRunner(t)

	for i := 0; i < 5; i++ {
		out, err := runner.evaluate(measurementAt("dab-001", i, 0.15, 500))
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}

		switch {
		case i == 0:
			if len(out.recs) == 0 {
				t.Fatal("cycle 0: expected alert-driven recommendations")
			}
			for _, rec := range out.recs {
				if rec.AlertID == "" {
					t.Error("cycle 0: recommendation missing alert id")
				}
			}
		case i < 4:
			if len(out.recs) != 0 {
				t.Fatalf("cycle %d: unexpected recommendations", i)
			}
		default:
			if len(out.recs) == 0 {
				t.Fatal("cycle 4: expected periodic review recommendations")
			}
			for _, rec := range out.recs {
				if rec.AlertID != "" {
					t.Errorf("review recommendation carries alert id %q", rec.AlertID)
				}
				if rec.Objective != dab.ObjectiveEfficiency {
					t.Errorf("review objective = %s, want %s", rec.Objective, dab.ObjectiveEfficiency)
				}
				if rec.ImpactScore < runner.cfg.Recommend.MinImpact {
					t.Errorf("impact = %g, want >= %g", rec.ImpactScore, runner.cfg.Recommend.MinImpact)
				}
			}
		}
	}
}

func TestAcknowledgeRoutesToOwningConverter(t *testing.T) {
	runner := newTestRunner(t)

	if _, err := runner.evaluate(measurementAt("dab-002", 0, 0.3, 1000)); err != nil {
		t.Fatalf("healthy cycle: %v", err)
	}
	out, err := runner.evaluate(measurementAt("dab-001", 0, 0.02, 100))
	if err != nil {
		t.Fatalf("degraded cycle: %v", err)
	}
	if len(out.alerts.Notifications) == 0 {
		t.Fatal("expected at least one alert")
	}
	alertID := out.alerts.Notifications[0].Alert.ID

	now := time.Unix(1700001000, 0).UTC()
	acked, ok := runner.acknowledge(alertID, "operator", now)
	if !ok {
		t.Fatal("acknowledge did not find the alert")
	}
	if acked.State != dab.StateAcknowledged {
		t.Errorf("state = %s, want %s", acked.State, dab.StateAcknowledged)
	}
	if acked.AcknowledgedBy != "operator" {
		t.Errorf("acknowledged by = %q", acked.AcknowledgedBy)
	}

	if _, ok := runner.acknowledge("no-such-alert", "operator", now); ok {
		t.Error("acknowledge found a nonexistent alert")
	}
}

func TestConvertersEvaluateIndependently(t *testing.T) {
	runner := newTestRunner(t)

	degraded, err := runner.evaluate(measurementAt("dab-001", 0, 0.02, 100))
	if err != nil {
		t.Fatalf("degraded cycle: %v", err)
	}
	healthy, err := runner.evaluate(measurementAt("dab-002", 0, 0.3, 1000))
	if err != nil {
		t.Fatalf("healthy cycle: %v", err)
	}

	if degraded.record.HealthScore >= healthy.record.HealthScore {
		t.Errorf("degraded score %g not below healthy score %g",
			degraded.record.HealthScore, healthy.record.HealthScore)
	}
	if len(healthy.alerts.Notifications) != 0 {
		t.Error("healthy converter picked up alerts from the degraded one")
	}
}

func TestEvaluateRejectsUnsimulatablePoint(t *testing.T) {
	runner := newTestRunner(t)

	m := measurementAt("dab-001", 0, 0.3, 1000)
	m.Point.Pload = 0
	if _, err := runner.evaluate(m); err == nil {
		t.Error("expected error for zero load point")
	}

	ent := runner.entity("dab-001")
	if len(ent.history) != 0 {
		t.Errorf("rejected point left %d history entries", len(ent.history))
	}
}
