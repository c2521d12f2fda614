// Package dab holds the shared value objects for dual active bridge
// converter monitoring: operating points, simulation results, health
// records, alerts and recommendations, plus the error taxonomy.
package dab

import "math"

const (
	// Accepted physical ranges for operating point validation.
	MaxVoltage       = 2000.0
	MaxPower         = 50000.0
	MinSwitchingFreq = 1000.0
	MaxSwitchingFreq = 1000000.0
	PhaseShiftLimit  = math.Pi / 2
)

// Tunable and monitored parameter names, shared by sweep axes,
// recommendation changes and alert quantities.
const (
	ParamVdc1          = "vdc1"
	ParamVdc2          = "vdc2"
	ParamPhaseShift    = "phase_shift"
	ParamDelta1        = "delta1"
	ParamDelta2        = "delta2"
	ParamPload         = "pload"
	ParamSwitchingFreq = "switching_frequency"

	QuantityEfficiency  = "efficiency"
	QuantityTemperature = "junction_temperature"
	QuantityTotalLoss   = "total_loss"
	QuantityHealthScore = "health_score"
	QuantityZVS         = "zvs"
)

type OperatingPoint struct {
	TsUnixNs      int64   `json:"ts_unix_ns,omitempty"`
	Vdc1          float64 `json:"vdc1"`
	Vdc2          float64 `json:"vdc2"`
	PhaseShift    float64 `json:"phase_shift"`
	Delta1        float64 `json:"delta1"`
	Delta2        float64 `json:"delta2"`
	Pload         float64 `json:"pload"`
	SwitchingFreq float64 `json:"switching_frequency"`
}

// Validate checks the electrical ranges only; ingest-level fields such as
// the timestamp are checked by Measurement.Valid.
func (p *OperatingPoint) Validate() error {
	checks := []struct {
		name     string
		value    float64
		min, max float64
		reason   string
	}{
		{ParamVdc1, p.Vdc1, math.SmallestNonzeroFloat64, MaxVoltage, "must be in (0, 2000] V"},
		{ParamVdc2, p.Vdc2, math.SmallestNonzeroFloat64, MaxVoltage, "must be in (0, 2000] V"},
		{ParamPhaseShift, p.PhaseShift, -PhaseShiftLimit, PhaseShiftLimit, "must be in [-pi/2, pi/2] rad"},
		{ParamDelta1, p.Delta1, 0, 1, "must be in [0, 1]"},
		{ParamDelta2, p.Delta2, 0, 1, "must be in [0, 1]"},
		{ParamPload, p.Pload, math.SmallestNonzeroFloat64, MaxPower, "must be in (0, 50000] W"},
		{ParamSwitchingFreq, p.SwitchingFreq, MinSwitchingFreq, MaxSwitchingFreq, "must be in [1e3, 1e6] Hz"},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &InvalidParameterError{Param: c.name, Value: c.value, Reason: "must be finite"}
		}
		if c.value < c.min || c.value > c.max {
			return &InvalidParameterError{Param: c.name, Value: c.value, Reason: c.reason}
		}
	}
	return nil
}

// Param returns the named tunable's current value.
func (p OperatingPoint) Param(name string) (float64, bool) {
	switch name {
	case ParamVdc1:
		return p.Vdc1, true
	case ParamVdc2:
		return p.Vdc2, true
	case ParamPhaseShift:
		return p.PhaseShift, true
	case ParamDelta1:
		return p.Delta1, true
	case ParamDelta2:
		return p.Delta2, true
	case ParamPload:
		return p.Pload, true
	case ParamSwitchingFreq:
		return p.SwitchingFreq, true
	}
	return 0, false
}

// WithParam returns a copy with the named tunable replaced.
func (p OperatingPoint) WithParam(name string, v float64) (OperatingPoint, bool) {
	switch name {
	case ParamVdc1:
		p.Vdc1 = v
	case ParamVdc2:
		p.Vdc2 = v
	case ParamPhaseShift:
		p.PhaseShift = v
	case ParamDelta1:
		p.Delta1 = v
	case ParamDelta2:
		p.Delta2 = v
	case ParamPload:
		p.Pload = v
	case ParamSwitchingFreq:
		p.SwitchingFreq = v
	default:
		return p, false
	}
	return p, true
}

type ZVSStatus string

const (
	ZVSFull    ZVSStatus = "full_zvs"
	ZVSPartial ZVSStatus = "partial_zvs"
	ZVSNone    ZVSStatus = "no_zvs"
)

type ZVSLegs struct {
	Primary   bool `json:"primary"`
	Secondary bool `json:"secondary"`
}

func (l ZVSLegs) Status() ZVSStatus {
	switch {
	case l.Primary && l.Secondary:
		return ZVSFull
	case l.Primary || l.Secondary:
		return ZVSPartial
	}
	return ZVSNone
}

// Rank orders soft-switching quality: none < partial < full.
func (s ZVSStatus) Rank() int {
	switch s {
	case ZVSNone:
		return 0
	case ZVSPartial:
		return 1
	case ZVSFull:
		return 2
	}
	return -1
}

type SimulationResult struct {
	Efficiency     float64   `json:"efficiency"`
	ConductionLoss float64   `json:"conduction_loss"`
	SwitchingLoss  float64   `json:"switching_loss"`
	TotalLoss      float64   `json:"total_loss"`
	JunctionTemp   float64   `json:"junction_temperature"`
	PowerTransfer  float64   `json:"power_transfer"`
	ZVSLegs        ZVSLegs   `json:"zvs_legs"`
	ZVSStatus      ZVSStatus `json:"zvs_status"`
}

// Sample pairs an operating point with its simulated outcome; diagnostics
// history is a slice of these.
type Sample struct {
	Point  OperatingPoint   `json:"point"`
	Result SimulationResult `json:"result"`
}

// Measurement is the ingest envelope published on the telemetry subject.
type Measurement struct {
	ConverterID string         `json:"converter_id"`
	Point       OperatingPoint `json:"point"`
}

func (m *Measurement) Valid() error {
	if m.ConverterID == "" {
		return ErrMissingConverterID
	}
	if m.Point.TsUnixNs <= 0 {
		return ErrInvalidTimestamp
	}
	return m.Point.Validate()
}

var (
	ErrMissingConverterID = &wireError{"missing converter_id"}
	ErrInvalidTimestamp   = &wireError{"invalid timestamp"}
)

type wireError struct {
	msg string
}

func (w *wireError) Error() string {
	return w.msg
}
