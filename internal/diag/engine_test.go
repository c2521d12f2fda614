package diag

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

func newEngines(t *testing.T) (*sim.Engine, *Engine) {
	t.Helper()
	se, err := sim.New(sim.DefaultParams())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	de, err := New(DefaultConfig(), se)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return se, de
}

func simHistory(t *testing.T, se *sim.Engine, n int, loadAt func(int) float64) []dab.Sample {
	t.Helper()
	history := make([]dab.Sample, 0, n)
	for i := 0; i < n; i++ {
		op := dab.OperatingPoint{
			TsUnixNs:      int64(i+1) * 1e9,
			Vdc1:          400,
			Vdc2:          48,
			PhaseShift:    0.4,
			Delta1:        1.0,
			Delta2:        1.0,
			Pload:         loadAt(i),
			SwitchingFreq: 100000,
		}
		res, err := se.Simulate(op)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		history = append(history, dab.Sample{Point: op, Result: res})
	}
	return history
}

func TestNewValidatesConfig(t *testing.T) {
	se, _ := newEngines(t)
	cases := []func(*Config){
		func(c *Config) { c.Weights = Weights{} },
		func(c *Config) { c.Weights.Efficiency = -0.1 },
		func(c *Config) { c.MinSamples = 1 },
		func(c *Config) { c.AnomalyWindow = 2 },
		func(c *Config) { c.ZScoreThreshold = 0 },
		func(c *Config) { c.Shift.Efficiency = 0 },
		func(c *Config) { c.TrendWindow = 2 },
		func(c *Config) { c.EfficiencyBand = 0 },
		func(c *Config) { c.TempSoftLimit = 30 },
		func(c *Config) { c.LossSlopeRef = 0 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := New(cfg, se)
		if err == nil {
			t.Errorf("case %d: expected construction failure", i)
			continue
		}
		var ce *dab.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("case %d: expected ConfigError, got %T", i, err)
		}
	}

	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Error("expected failure without a simulation engine")
	}
}

func TestEvaluateEmptyHistory(t *testing.T) {
	_, de := newEngines(t)
	_, err := de.Evaluate("dab-001", nil)
	if err == nil {
		t.Fatal("expected error for empty history")
	}
	var ihe *dab.InsufficientHistoryError
	if !errors.As(err, &ihe) {
		t.Fatalf("expected InsufficientHistoryError, got %T", err)
	}
}

func TestShortHistoryDegradesToNeutral(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 3, func(int) float64 { return 1000 })

	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.Trend != dab.TrendStable {
		t.Errorf("short history trend: got %s, want %s", rec.Trend, dab.TrendStable)
	}
	if len(rec.Anomalies) != 0 {
		t.Errorf("short history must not flag anomalies, got %d", len(rec.Anomalies))
	}
	if rec.HealthScore < 0 || rec.HealthScore > 100 {
		t.Errorf("score %g outside [0, 100]", rec.HealthScore)
	}
	if rec.TsUnixNs != history[2].Point.TsUnixNs {
		t.Errorf("record timestamp should come from the latest sample")
	}
}

func TestHealthySteadyStateScoresHigh(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 12, func(int) float64 { return 1000 })

	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.HealthScore < 80 {
		t.Errorf("healthy steady state scored %g, want >= 80", rec.HealthScore)
	}
	if rec.Trend != dab.TrendStable {
		t.Errorf("steady state trend: got %s", rec.Trend)
	}
	if len(rec.Anomalies) != 0 {
		t.Errorf("steady state flagged %d anomalies", len(rec.Anomalies))
	}
	if rec.WindowSize != 12 {
		t.Errorf("window size %d, want 12", rec.WindowSize)
	}
}

func TestRisingLoadDegradesTrend(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 12, func(i int) float64 { return 1000 + 150*float64(i) })

	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.Trend != dab.TrendDegrading {
		t.Errorf("trend: got %s, want %s", rec.Trend, dab.TrendDegrading)
	}
}

func TestFallingLoadImprovesTrend(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 12, func(i int) float64 { return 2650 - 150*float64(i) })

	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.Trend != dab.TrendImproving {
		t.Errorf("trend: got %s, want %s", rec.Trend, dab.TrendImproving)
	}
}

func TestWeightsSteerComposite(t *testing.T) {
	se, _ := newEngines(t)
	cfg := DefaultConfig()
	cfg.Weights = Weights{Thermal: 1}
	de, err := New(cfg, se)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history := simHistory(t, se, 4, func(int) float64 { return 1000 })
	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.HealthScore != round1(rec.Components.Thermal) {
		t.Errorf("thermal-only weights: score %g, component %g", rec.HealthScore, rec.Components.Thermal)
	}
}

func TestReplayProducesIdenticalRecord(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 15, func(i int) float64 { return 1000 + 100*float64(i%4) })

	first, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay diverged:\n%+v\n%+v", first, second)
	}
}

func TestScoreRoundedToOneDecimal(t *testing.T) {
	se, de := newEngines(t)
	history := simHistory(t, se, 10, func(i int) float64 { return 900 + 57*float64(i) })

	rec, err := de.Evaluate("dab-001", history)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if diff := math.Abs(rec.HealthScore*10 - math.Round(rec.HealthScore*10)); diff > 1e-9 {
		t.Errorf("score %g not rounded to one decimal", rec.HealthScore)
	}
}
