package diag

import (
	"math"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

type quantitySpec struct {
	name    string
	extract func(dab.Sample) float64
	shift   float64
}

func (e *Engine) quantities() []quantitySpec {
	return []quantitySpec{
		{dab.QuantityEfficiency, func(s dab.Sample) float64 { return s.Result.Efficiency }, e.cfg.Shift.Efficiency},
		{dab.QuantityTemperature, func(s dab.Sample) float64 { return s.Result.JunctionTemp }, e.cfg.Shift.Temperature},
		{dab.QuantityTotalLoss, func(s dab.Sample) float64 { return s.Result.TotalLoss }, e.cfg.Shift.TotalLoss},
	}
}

// detectAnomalies runs the z-score and level-shift detectors over the
// anomaly window for each monitored quantity. Quantities are scanned in
// a fixed order so the flag slice is reproducible.
func (e *Engine) detectAnomalies(history []dab.Sample) []dab.Anomaly {
	window := tail(history, e.cfg.AnomalyWindow)
	var flags []dab.Anomaly

	for _, q := range e.quantities() {
		series := make([]float64, len(window))
		for i, s := range window {
			series[i] = q.extract(s)
		}

		if a, ok := e.zScoreAnomaly(q, series); ok {
			flags = append(flags, a)
		}
		if a, ok := e.levelShiftAnomaly(q, series); ok {
			flags = append(flags, a)
		}
	}
	return flags
}

func (e *Engine) zScoreAnomaly(q quantitySpec, series []float64) (dab.Anomaly, bool) {
	mean, std := meanStd(series)
	if std == 0 {
		return dab.Anomaly{}, false
	}

	last := series[len(series)-1]
	z := (last - mean) / std
	if math.Abs(z) < e.cfg.ZScoreThreshold {
		return dab.Anomaly{}, false
	}

	kind := dab.AnomalySpike
	if z < 0 {
		kind = dab.AnomalyDrop
	}
	conf := saturate((math.Abs(z) - e.cfg.ZScoreThreshold) / e.cfg.ZScoreThreshold)
	return dab.Anomaly{
		Kind:       kind,
		Quantity:   q.name,
		Value:      last,
		ZScore:     z,
		Confidence: conf,
		Severity:   gradeSeverity(conf),
	}, true
}

// levelShiftAnomaly compares the older and newer half-window means; a
// sustained shift beyond the configured magnitude flags even when no
// single sample is an outlier.
func (e *Engine) levelShiftAnomaly(q quantitySpec, series []float64) (dab.Anomaly, bool) {
	if len(series) < 6 {
		return dab.Anomaly{}, false
	}

	half := len(series) / 2
	oldMean, _ := meanStd(series[:half])
	newMean, _ := meanStd(series[half:])
	diff := newMean - oldMean
	if math.Abs(diff) < q.shift {
		return dab.Anomaly{}, false
	}

	conf := saturate((math.Abs(diff) - q.shift) / q.shift)
	return dab.Anomaly{
		Kind:       dab.AnomalyShift,
		Quantity:   q.name,
		Value:      series[len(series)-1],
		ZScore:     diff / q.shift,
		Confidence: conf,
		Severity:   gradeSeverity(conf),
	}, true
}

func meanStd(series []float64) (float64, float64) {
	n := len(series)
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(n)

	if n < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range series {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(n-1))
}

// saturate maps a non-negative excess ratio into [0, 1), monotonically
// approaching 1 as the excess grows.
func saturate(excess float64) float64 {
	if excess < 0 {
		return 0
	}
	return excess / (1 + excess)
}

func gradeSeverity(conf float64) dab.Severity {
	switch {
	case conf >= 0.8:
		return dab.SeverityCritical
	case conf >= 0.5:
		return dab.SeverityWarning
	}
	return dab.SeverityInfo
}
