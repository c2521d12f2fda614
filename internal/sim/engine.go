// Package sim implements the steady-state dual active bridge model:
// phase-shift power transfer, conduction and switching losses, per-bridge
// zero-voltage-switching boundaries and junction temperature.
package sim

import (
	"math"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

type Modulation string

const (
	ModulationSPS Modulation = "sps"
	ModulationDPS Modulation = "dps"
	ModulationTPS Modulation = "tps"
)

// Params are the device calibration constants. Zero values are not
// meaningful; start from DefaultParams and overlay configuration.
type Params struct {
	TurnsRatio        float64    `yaml:"turns_ratio" json:"turns_ratio"`
	LeakageInductance float64    `yaml:"leakage_inductance" json:"leakage_inductance"`
	RonPrimary        float64    `yaml:"ron_primary" json:"ron_primary"`
	RonSecondary      float64    `yaml:"ron_secondary" json:"ron_secondary"`
	TransformerRes    float64    `yaml:"transformer_resistance" json:"transformer_resistance"`
	OutputCapacitance float64    `yaml:"output_capacitance" json:"output_capacitance"`
	ThermalResistance float64    `yaml:"thermal_resistance" json:"thermal_resistance"`
	AmbientTemp       float64    `yaml:"ambient_temp" json:"ambient_temp"`
	ZVSCurrentFloor   float64    `yaml:"zvs_current_floor" json:"zvs_current_floor"`
	HardSwitchPenalty float64    `yaml:"hard_switch_penalty" json:"hard_switch_penalty"`
	ZVSResidualFactor float64    `yaml:"zvs_residual_factor" json:"zvs_residual_factor"`
	AuxLossFraction   float64    `yaml:"aux_loss_fraction" json:"aux_loss_fraction"`
	Modulation        Modulation `yaml:"modulation" json:"modulation"`
}

func DefaultParams() Params {
	return Params{
		TurnsRatio:        1.0,
		LeakageInductance: 50e-6,
		RonPrimary:        0.1,
		RonSecondary:      0.01,
		TransformerRes:    0.05,
		OutputCapacitance: 100e-12,
		ThermalResistance: 0.5,
		AmbientTemp:       25.0,
		ZVSCurrentFloor:   0.3,
		HardSwitchPenalty: 2.5,
		ZVSResidualFactor: 0.05,
		AuxLossFraction:   0.02,
		Modulation:        ModulationSPS,
	}
}

func (p Params) validate() error {
	switch {
	case p.TurnsRatio <= 0:
		return &dab.ConfigError{Section: "device", Reason: "turns_ratio must be positive"}
	case p.LeakageInductance <= 0:
		return &dab.ConfigError{Section: "device", Reason: "leakage_inductance must be positive"}
	case p.RonPrimary < 0 || p.RonSecondary < 0 || p.TransformerRes < 0:
		return &dab.ConfigError{Section: "device", Reason: "resistances must not be negative"}
	case p.OutputCapacitance < 0:
		return &dab.ConfigError{Section: "device", Reason: "output_capacitance must not be negative"}
	case p.ThermalResistance <= 0:
		return &dab.ConfigError{Section: "device", Reason: "thermal_resistance must be positive"}
	case p.ZVSCurrentFloor < 0:
		return &dab.ConfigError{Section: "device", Reason: "zvs_current_floor must not be negative"}
	case p.HardSwitchPenalty < 1:
		return &dab.ConfigError{Section: "device", Reason: "hard_switch_penalty must be at least 1"}
	case p.ZVSResidualFactor < 0 || p.ZVSResidualFactor > 1:
		return &dab.ConfigError{Section: "device", Reason: "zvs_residual_factor must be in [0, 1]"}
	case p.AuxLossFraction < 0 || p.AuxLossFraction > 0.2:
		return &dab.ConfigError{Section: "device", Reason: "aux_loss_fraction must be in [0, 0.2]"}
	}

	switch p.Modulation {
	case ModulationSPS, ModulationDPS, ModulationTPS:
	default:
		return &dab.ConfigError{Section: "device", Reason: "modulation must be sps, dps or tps"}
	}
	return nil
}

type Engine struct {
	p Params
}

func New(p Params) (*Engine, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Engine{p: p}, nil
}

func (e *Engine) Params() Params {
	return e.p
}

// dutyCycles returns the effective bridge duty terms. Single phase-shift
// modulation drives both bridges at full square wave regardless of the
// configured duty inputs.
func (e *Engine) dutyCycles(op dab.OperatingPoint) (float64, float64) {
	if e.p.Modulation == ModulationSPS {
		return 1, 1
	}
	return op.Delta1, op.Delta2
}

// Simulate evaluates one operating point. The call is pure and
// deterministic; identical inputs yield bit-identical results.
func (e *Engine) Simulate(op dab.OperatingPoint) (dab.SimulationResult, error) {
	if err := op.Validate(); err != nil {
		return dab.SimulationResult{}, err
	}

	duty1, duty2 := e.dutyCycles(op)
	absPhi := math.Abs(op.PhaseShift)

	// Transferable power of the phase-shifted bridge pair. Zero phase
	// shift transfers nothing; that is a defined state, not an error.
	pcap := e.p.TurnsRatio * op.Vdc1 * op.Vdc2 * absPhi * (math.Pi - absPhi) /
		(2 * math.Pi * math.Pi * op.SwitchingFreq * e.p.LeakageInductance)
	pcap *= duty1 * duty2
	transfer := pcap
	if op.PhaseShift < 0 {
		transfer = -pcap
	}

	v1e := op.Vdc1 * duty1
	v2e := op.Vdc2 * duty2

	// Bridge current estimates from the demanded load. A de-energised
	// bridge (duty 0) carries no current rather than dividing by zero.
	var i1, i2 float64
	if v1e > 0 {
		i1 = op.Pload / v1e
	}
	if v2e > 0 {
		i2 = op.Pload / v2e
	}
	conduction := i1*i1*(e.p.RonPrimary+e.p.TransformerRes) +
		i2*i2*e.p.RonSecondary +
		e.p.AuxLossFraction*op.Pload

	// A bridge commutates softly when the transferable power pushes
	// enough current through it at the switching instant.
	var ic1, ic2 float64
	if v1e > 0 {
		ic1 = pcap / v1e
	}
	if v2e > 0 {
		ic2 = pcap / v2e
	}
	legs := dab.ZVSLegs{
		Primary:   ic1 >= e.p.ZVSCurrentFloor,
		Secondary: ic2 >= e.p.ZVSCurrentFloor,
	}

	sw1 := op.SwitchingFreq * e.p.OutputCapacitance * op.Vdc1 * op.Vdc1 * 2
	sw2 := op.SwitchingFreq * e.p.OutputCapacitance * op.Vdc2 * op.Vdc2 * 2
	switching := sw1*e.switchFactor(ic1) + sw2*e.switchFactor(ic2)

	total := conduction + switching
	result := dab.SimulationResult{
		Efficiency:     op.Pload / (op.Pload + total),
		ConductionLoss: conduction,
		SwitchingLoss:  switching,
		TotalLoss:      total,
		JunctionTemp:   e.p.AmbientTemp + total*e.p.ThermalResistance,
		PowerTransfer:  transfer,
		ZVSLegs:        legs,
		ZVSStatus:      legs.Status(),
	}
	return result, nil
}

// switchFactor scales the stored-energy loss by the commutation current
// available at the bridge: the residual factor inside the ZVS region,
// rising sharply with the shortfall below the floor.
func (e *Engine) switchFactor(ic float64) float64 {
	floor := e.p.ZVSCurrentFloor
	if floor <= 0 || ic >= floor {
		return e.p.ZVSResidualFactor
	}
	shortfall := (floor - ic) / floor
	return e.p.ZVSResidualFactor + (e.p.HardSwitchPenalty-e.p.ZVSResidualFactor)*math.Sqrt(shortfall)
}

// OptimalEfficiency scans a coarse phase-shift grid at the point's load
// and voltages and returns the best efficiency found, including the
// point's own. Diagnostics uses it as the best-for-this-load reference.
func (e *Engine) OptimalEfficiency(op dab.OperatingPoint) (float64, error) {
	base, err := e.Simulate(op)
	if err != nil {
		return 0, err
	}

	const steps = 24
	best := base.Efficiency
	for i := 0; i <= steps; i++ {
		phi := 0.01 + (dab.PhaseShiftLimit-0.01)*float64(i)/steps
		cand, _ := op.WithParam(dab.ParamPhaseShift, phi)
		res, err := e.Simulate(cand)
		if err != nil {
			continue
		}
		if res.Efficiency > best {
			best = res.Efficiency
		}
	}
	return best, nil
}
