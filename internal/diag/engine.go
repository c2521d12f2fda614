// Package diag turns simulated operating history into health records:
// a weighted composite score, statistical anomaly flags and a trend
// direction over recent evaluations.
package diag

import (
	"math"

	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

type Weights struct {
	Efficiency float64 `yaml:"efficiency" json:"efficiency"`
	Thermal    float64 `yaml:"thermal" json:"thermal"`
	ZVS        float64 `yaml:"zvs" json:"zvs"`
	LossTrend  float64 `yaml:"loss_trend" json:"loss_trend"`
}

func (w Weights) sum() float64 {
	return w.Efficiency + w.Thermal + w.ZVS + w.LossTrend
}

type ShiftConfig struct {
	Efficiency  float64 `yaml:"efficiency" json:"efficiency"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TotalLoss   float64 `yaml:"total_loss" json:"total_loss"`
}

type Config struct {
	Weights         Weights     `yaml:"weights" json:"weights"`
	MinSamples      int         `yaml:"min_samples" json:"min_samples"`
	AnomalyWindow   int         `yaml:"anomaly_window" json:"anomaly_window"`
	ZScoreThreshold float64     `yaml:"zscore_threshold" json:"zscore_threshold"`
	Shift           ShiftConfig `yaml:"shift" json:"shift"`
	TrendWindow     int         `yaml:"trend_window" json:"trend_window"`
	TrendNoiseFloor float64     `yaml:"trend_noise_floor" json:"trend_noise_floor"`
	EfficiencyBand  float64     `yaml:"efficiency_band" json:"efficiency_band"`
	TempSoftLimit   float64     `yaml:"temp_soft_limit" json:"temp_soft_limit"`
	TempFloor       float64     `yaml:"temp_floor" json:"temp_floor"`
	LossSlopeRef    float64     `yaml:"loss_slope_ref" json:"loss_slope_ref"`
}

func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Efficiency: 0.45, Thermal: 0.25, ZVS: 0.2, LossTrend: 0.1},
		MinSamples:      8,
		AnomalyWindow:   20,
		ZScoreThreshold: 3.0,
		Shift:           ShiftConfig{Efficiency: 0.02, Temperature: 5.0, TotalLoss: 10.0},
		TrendWindow:     12,
		TrendNoiseFloor: 0.15,
		EfficiencyBand:  0.05,
		TempSoftLimit:   65.0,
		TempFloor:       35.0,
		LossSlopeRef:    1.0,
	}
}

func (c Config) validate() error {
	w := c.Weights
	switch {
	case w.Efficiency < 0 || w.Thermal < 0 || w.ZVS < 0 || w.LossTrend < 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "weights must not be negative"}
	case w.sum() <= 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "weight sum must be positive"}
	case c.MinSamples < 2:
		return &dab.ConfigError{Section: "diagnostics", Reason: "min_samples must be at least 2"}
	case c.AnomalyWindow < 4:
		return &dab.ConfigError{Section: "diagnostics", Reason: "anomaly_window must be at least 4"}
	case c.ZScoreThreshold <= 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "zscore_threshold must be positive"}
	case c.Shift.Efficiency <= 0 || c.Shift.Temperature <= 0 || c.Shift.TotalLoss <= 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "shift magnitudes must be positive"}
	case c.TrendWindow < 3:
		return &dab.ConfigError{Section: "diagnostics", Reason: "trend_window must be at least 3"}
	case c.TrendNoiseFloor < 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "trend_noise_floor must not be negative"}
	case c.EfficiencyBand <= 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "efficiency_band must be positive"}
	case c.TempSoftLimit <= c.TempFloor:
		return &dab.ConfigError{Section: "diagnostics", Reason: "temp_soft_limit must exceed temp_floor"}
	case c.LossSlopeRef <= 0:
		return &dab.ConfigError{Section: "diagnostics", Reason: "loss_slope_ref must be positive"}
	}
	return nil
}

type Engine struct {
	cfg Config
	sim *sim.Engine
}

func New(cfg Config, simEngine *sim.Engine) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if simEngine == nil {
		return nil, &dab.ConfigError{Section: "diagnostics", Reason: "simulation engine required"}
	}
	return &Engine{cfg: cfg, sim: simEngine}, nil
}

// Evaluate computes the health record for the newest sample. It is a pure
// function of the history slice: replaying the same history yields an
// identical record. Histories shorter than min_samples degrade to a
// stable record without anomaly flags; only an empty history fails.
func (e *Engine) Evaluate(converterID string, history []dab.Sample) (dab.HealthRecord, error) {
	if len(history) == 0 {
		return dab.HealthRecord{}, &dab.InsufficientHistoryError{Have: 0, Need: 1}
	}

	latest := history[len(history)-1]
	score, comps := e.composite(history)

	rec := dab.HealthRecord{
		ConverterID: converterID,
		TsUnixNs:    latest.Point.TsUnixNs,
		HealthScore: score,
		Components:  comps,
		Trend:       dab.TrendStable,
		Sample:      latest,
		WindowSize:  len(history),
	}

	if len(history) >= e.cfg.MinSamples {
		rec.Anomalies = e.detectAnomalies(history)
		rec.Trend = e.trendOf(history)
	}
	return rec, nil
}

func (e *Engine) composite(history []dab.Sample) (float64, dab.ScoreComponents) {
	latest := history[len(history)-1]
	comps := dab.ScoreComponents{
		Efficiency: e.efficiencyScore(latest),
		Thermal:    e.thermalScore(latest.Result.JunctionTemp),
		ZVS:        zvsScore(latest.Result.ZVSStatus),
		LossTrend:  e.lossTrendScore(history),
	}

	w := e.cfg.Weights
	score := (comps.Efficiency*w.Efficiency +
		comps.Thermal*w.Thermal +
		comps.ZVS*w.ZVS +
		comps.LossTrend*w.LossTrend) / w.sum()
	return round1(clamp(score, 0, 100)), comps
}

func (e *Engine) efficiencyScore(s dab.Sample) float64 {
	optimal, err := e.sim.OptimalEfficiency(s.Point)
	if err != nil {
		optimal = s.Result.Efficiency
	}

	deviation := optimal - s.Result.Efficiency
	if deviation < 0 {
		deviation = 0
	}
	return clamp(100*(1-deviation/e.cfg.EfficiencyBand), 0, 100)
}

func (e *Engine) thermalScore(tj float64) float64 {
	span := e.cfg.TempSoftLimit - e.cfg.TempFloor
	return clamp(100*(e.cfg.TempSoftLimit-tj)/span, 0, 100)
}

func zvsScore(status dab.ZVSStatus) float64 {
	switch status {
	case dab.ZVSFull:
		return 100
	case dab.ZVSPartial:
		return 50
	}
	return 0
}

func (e *Engine) lossTrendScore(history []dab.Sample) float64 {
	window := tail(history, e.cfg.TrendWindow)
	if len(window) < 3 {
		return 50
	}

	series := make([]float64, len(window))
	for i, s := range window {
		series[i] = s.Result.TotalLoss
	}
	slope := linearSlope(series)
	ref := e.cfg.LossSlopeRef
	return clamp(100*(ref-slope)/(2*ref), 0, 100)
}

// trendOf fits the reported health score over the trend window. Scores
// are recomputed per prefix so the fit matches what evaluations at those
// samples reported.
func (e *Engine) trendOf(history []dab.Sample) dab.TrendDirection {
	n := e.cfg.TrendWindow
	if len(history) < n {
		n = len(history)
	}
	if n < 3 {
		return dab.TrendStable
	}

	scores := make([]float64, n)
	offset := len(history) - n
	for i := 0; i < n; i++ {
		scores[i], _ = e.composite(history[:offset+i+1])
	}

	slope := linearSlope(scores)
	switch {
	case math.Abs(slope) < e.cfg.TrendNoiseFloor:
		return dab.TrendStable
	case slope < 0:
		return dab.TrendDegrading
	}
	return dab.TrendImproving
}

func linearSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}

	xMean := (n - 1) / 2
	var yMean float64
	for _, y := range series {
		yMean += y
	}
	yMean /= n

	var num, den float64
	for i, y := range series {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func tail(history []dab.Sample, n int) []dab.Sample {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
