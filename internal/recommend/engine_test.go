package recommend

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	simEngine, err := sim.New(sim.DefaultParams())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	eng, err := New(DefaultConfig(), simEngine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.now = func() time.Time { return time.Unix(1700000000, 0) }
	eng.newID = sequentialIDs()
	return eng
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rec-%04d", n)
	}
}

func pointAt(phase, pload float64) dab.OperatingPoint {
	return dab.OperatingPoint{
		TsUnixNs:      1700000000_000000000,
		Vdc1:          400,
		Vdc2:          48,
		PhaseShift:    phase,
		Delta1:        1.0,
		Delta2:        1.0,
		Pload:         pload,
		SwitchingFreq: 100000,
	}
}

func zvsAlert() *dab.Alert {
	return &dab.Alert{
		ID:          "alert-zvs",
		ConverterID: "dab-001",
		Kind:        dab.KindZVSLoss,
		Quantity:    dab.QuantityZVS,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	simEngine, err := sim.New(sim.DefaultParams())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero phase step", func(c *Config) { c.PhaseStep = 0 }},
		{"negative duty step", func(c *Config) { c.DutyStep = -0.1 }},
		{"zero freq step", func(c *Config) { c.FreqStep = 0 }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"negative min impact", func(c *Config) { c.MinImpact = -1 }},
		{"zero max results", func(c *Config) { c.MaxResults = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if _, err := New(cfg, simEngine); err == nil {
			t.Errorf("%s: expected config error", tc.name)
		}
	}

	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil simulation engine")
	}
}

func TestObjectiveFromAlertKind(t *testing.T) {
	cases := []struct {
		kind     dab.AlertKind
		quantity string
		want     dab.Objective
	}{
		{dab.KindZVSLoss, dab.QuantityZVS, dab.ObjectiveZVS},
		{dab.KindThreshold, dab.QuantityTemperature, dab.ObjectiveTemperature},
		{dab.KindAnomaly, dab.QuantityTemperature, dab.ObjectiveTemperature},
		{dab.KindThreshold, dab.QuantityEfficiency, dab.ObjectiveEfficiency},
		{dab.KindAnomaly, dab.QuantityEfficiency, dab.ObjectiveEfficiency},
		{dab.KindHealthDegradation, dab.QuantityHealthScore, dab.ObjectiveEfficiency},
		{dab.KindTrend, dab.QuantityHealthScore, dab.ObjectiveEfficiency},
	}
	for _, tc := range cases {
		alert := &dab.Alert{Kind: tc.kind, Quantity: tc.quantity}
		if got := objectiveFor(alert); got != tc.want {
			t.Errorf("objectiveFor(%s/%s) = %s, want %s", tc.kind, tc.quantity, got, tc.want)
		}
	}
}

func TestZVSLossRecommendsDeeperPhaseShift(t *testing.T) {
	eng := newEngine(t)
	op := pointAt(0.02, 100)

	recs, err := eng.ForAlert(zvsAlert(), op)
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected recommendations for hard-switched point")
	}

	simEngine, _ := sim.New(sim.DefaultParams())
	base, err := simEngine.Simulate(op)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	for _, rec := range recs {
		if rec.Objective != dab.ObjectiveZVS {
			t.Errorf("objective = %s, want %s", rec.Objective, dab.ObjectiveZVS)
		}
		if rec.Predicted.ZVSStatus.Rank() <= base.ZVSStatus.Rank() {
			t.Errorf("predicted ZVS %s does not improve on %s", rec.Predicted.ZVSStatus, base.ZVSStatus)
		}
		var phase *dab.ParameterChange
		for i := range rec.Changes {
			if rec.Changes[i].Name == dab.ParamPhaseShift {
				phase = &rec.Changes[i]
			}
		}
		if phase == nil {
			t.Fatal("expected a phase shift change")
		}
		if phase.Delta <= 0 {
			t.Errorf("phase delta = %g, want positive", phase.Delta)
		}
	}
}

func TestEfficiencyObjectiveDescendsToMeaningfulGain(t *testing.T) {
	eng := newEngine(t)
	op := pointAt(0.15, 500)
	alert := &dab.Alert{
		ID:          "alert-eff",
		ConverterID: "dab-001",
		Kind:        dab.KindThreshold,
		Quantity:    dab.QuantityEfficiency,
	}

	recs, err := eng.ForAlert(alert, op)
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Rank != 1 {
		t.Errorf("rank = %d, want 1", rec.Rank)
	}
	if rec.ImpactScore < eng.cfg.MinImpact {
		t.Errorf("impact = %g, want >= %g", rec.ImpactScore, eng.cfg.MinImpact)
	}
	if rec.Predicted.Efficiency <= rec.BaselineEfficiency {
		t.Errorf("predicted efficiency %g does not beat baseline %g",
			rec.Predicted.Efficiency, rec.BaselineEfficiency)
	}
	if rec.AlertID != "alert-eff" {
		t.Errorf("alert id = %q, want alert-eff", rec.AlertID)
	}
	if rec.Status != dab.RecProposed {
		t.Errorf("status = %s, want %s", rec.Status, dab.RecProposed)
	}
}

func TestTemperatureObjectiveLowersJunctionTemp(t *testing.T) {
	eng := newEngine(t)
	op := pointAt(0.02, 100)
	alert := &dab.Alert{
		ID:          "alert-temp",
		ConverterID: "dab-001",
		Kind:        dab.KindThreshold,
		Quantity:    dab.QuantityTemperature,
	}

	recs, err := eng.ForAlert(alert, op)
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected recommendations")
	}

	simEngine, _ := sim.New(sim.DefaultParams())
	base, _ := simEngine.Simulate(op)
	for _, rec := range recs {
		if rec.Objective != dab.ObjectiveTemperature {
			t.Errorf("objective = %s, want %s", rec.Objective, dab.ObjectiveTemperature)
		}
		if rec.Predicted.JunctionTemp >= base.JunctionTemp {
			t.Errorf("predicted Tj %g does not improve on %g",
				rec.Predicted.JunctionTemp, base.JunctionTemp)
		}
	}
}

func TestBoundaryPointYieldsNothing(t *testing.T) {
	eng := newEngine(t)
	op := pointAt(1.56, 500)

	recs, err := eng.ForAlert(zvsAlert(), op)
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations at saturated point, want none", len(recs))
	}
}

func TestInvalidBasePointReturnsError(t *testing.T) {
	eng := newEngine(t)
	op := pointAt(0.15, 500)
	op.Vdc1 = -1

	if _, err := eng.ForAlert(zvsAlert(), op); err == nil {
		t.Error("expected error for invalid operating point")
	}
}

func TestImpactFloorDropsMarginalCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	simEngine, err := sim.New(sim.DefaultParams())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	eng, err := New(cfg, simEngine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.now = func() time.Time { return time.Unix(1700000000, 0) }
	eng.newID = sequentialIDs()

	// A single step from this point gains well under half an
	// efficiency point, so every candidate falls below the floor.
	alert := &dab.Alert{
		ID:          "alert-eff",
		ConverterID: "dab-001",
		Kind:        dab.KindThreshold,
		Quantity:    dab.QuantityEfficiency,
	}
	recs, err := eng.ForAlert(alert, pointAt(0.15, 500))
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations, want none below impact floor", len(recs))
	}
}

func TestRankingIsDenseAndOrdered(t *testing.T) {
	eng := newEngine(t)
	recs, err := eng.ForAlert(zvsAlert(), pointAt(0.02, 100))
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("got %d recommendations, want at least 2", len(recs))
	}
	if len(recs) > eng.cfg.MaxResults {
		t.Fatalf("got %d recommendations, cap is %d", len(recs), eng.cfg.MaxResults)
	}
	for i, rec := range recs {
		if rec.Rank != i+1 {
			t.Errorf("recs[%d].Rank = %d, want %d", i, rec.Rank, i+1)
		}
		if i > 0 && recs[i-1].ImpactScore < rec.ImpactScore {
			t.Errorf("impact not descending at %d: %g before %g",
				i, recs[i-1].ImpactScore, rec.ImpactScore)
		}
	}
}

func TestConfidenceStaysInUnitInterval(t *testing.T) {
	eng := newEngine(t)
	recs, err := eng.ForAlert(zvsAlert(), pointAt(0.02, 100))
	if err != nil {
		t.Fatalf("ForAlert: %v", err)
	}
	for _, rec := range recs {
		if rec.Confidence <= 0 || rec.Confidence > 1 {
			t.Errorf("confidence = %g, want in (0, 1]", rec.Confidence)
		}
	}
}

func TestPeriodicReviewCarriesNoAlert(t *testing.T) {
	eng := newEngine(t)
	recs, err := eng.PeriodicReview("dab-001", pointAt(0.15, 500))
	if err != nil {
		t.Fatalf("PeriodicReview: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected recommendations")
	}
	for _, rec := range recs {
		if rec.AlertID != "" {
			t.Errorf("alert id = %q, want empty", rec.AlertID)
		}
		if rec.Objective != dab.ObjectiveEfficiency {
			t.Errorf("objective = %s, want %s", rec.Objective, dab.ObjectiveEfficiency)
		}
		if rec.ConverterID != "dab-001" {
			t.Errorf("converter id = %q, want dab-001", rec.ConverterID)
		}
	}
}

func TestRecommendationsAreReproducible(t *testing.T) {
	run := func() []dab.Recommendation {
		eng := newEngine(t)
		recs, err := eng.ForAlert(zvsAlert(), pointAt(0.02, 100))
		if err != nil {
			t.Fatalf("ForAlert: %v", err)
		}
		return recs
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
