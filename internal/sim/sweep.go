package sim

import (
	"sync"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

const MaxAxisSteps = 200

type Axis struct {
	Param string  `json:"param" yaml:"param"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Steps int     `json:"steps" yaml:"steps"`
}

func (a Axis) Validate() error {
	if _, ok := (dab.OperatingPoint{}).Param(a.Param); !ok {
		return &dab.InvalidParameterError{Param: a.Param, Value: 0, Reason: "unknown sweep parameter"}
	}
	if a.Steps < 2 || a.Steps > MaxAxisSteps {
		return &dab.InvalidParameterError{Param: a.Param, Value: float64(a.Steps), Reason: "steps must be in [2, 200]"}
	}
	if !(a.Min < a.Max) {
		return &dab.InvalidParameterError{Param: a.Param, Value: a.Min, Reason: "min must be below max"}
	}
	return nil
}

func (a Axis) Values() []float64 {
	vals := make([]float64, a.Steps)
	span := a.Max - a.Min
	for i := range vals {
		vals[i] = a.Min + span*float64(i)/float64(a.Steps-1)
	}
	return vals
}

type Cell struct {
	X            float64       `json:"x"`
	Y            float64       `json:"y"`
	Valid        bool          `json:"valid"`
	Efficiency   float64       `json:"efficiency"`
	TotalLoss    float64       `json:"total_loss"`
	JunctionTemp float64       `json:"junction_temperature"`
	ZVSStatus    dab.ZVSStatus `json:"zvs_status,omitempty"`
}

// Grid is a sweep result; Cells is indexed [y][x].
type Grid struct {
	XAxis Axis               `json:"x_axis"`
	YAxis Axis               `json:"y_axis"`
	Base  dab.OperatingPoint `json:"base"`
	Cells [][]Cell           `json:"cells"`
}

// ZVSShare reports the fraction of valid cells operating in full ZVS.
func (g *Grid) ZVSShare() float64 {
	valid, full := 0, 0
	for _, row := range g.Cells {
		for _, c := range row {
			if !c.Valid {
				continue
			}
			valid++
			if c.ZVSStatus == dab.ZVSFull {
				full++
			}
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(full) / float64(valid)
}

// Sweep evaluates the x/y grid around the base point. Rows run
// concurrently; every cell is an independent pure call. Cells whose
// candidate point falls outside the accepted ranges are marked invalid
// rather than failing the sweep.
func (e *Engine) Sweep(base dab.OperatingPoint, x, y Axis) (*Grid, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if err := y.Validate(); err != nil {
		return nil, err
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	xVals := x.Values()
	yVals := y.Values()
	cells := make([][]Cell, len(yVals))

	var wg sync.WaitGroup
	for yi, yv := range yVals {
		wg.Add(1)
		go func(yi int, yv float64) {
			defer wg.Done()
			row := make([]Cell, len(xVals))
			for xi, xv := range xVals {
				row[xi] = e.sweepCell(base, x.Param, xv, y.Param, yv)
			}
			cells[yi] = row
		}(yi, yv)
	}
	wg.Wait()

	return &Grid{XAxis: x, YAxis: y, Base: base, Cells: cells}, nil
}

func (e *Engine) sweepCell(base dab.OperatingPoint, xParam string, xv float64, yParam string, yv float64) Cell {
	cell := Cell{X: xv, Y: yv}
	cand, _ := base.WithParam(xParam, xv)
	cand, _ = cand.WithParam(yParam, yv)

	res, err := e.Simulate(cand)
	if err != nil {
		return cell
	}

	cell.Valid = true
	cell.Efficiency = res.Efficiency
	cell.TotalLoss = res.TotalLoss
	cell.JunctionTemp = res.JunctionTemp
	cell.ZVSStatus = res.ZVSStatus
	return cell
}

type ImpactRow struct {
	Param           string        `json:"param"`
	NewValue        float64       `json:"new_value"`
	Valid           bool          `json:"valid"`
	EfficiencyDelta float64       `json:"efficiency_delta"`
	TempDelta       float64       `json:"temperature_delta"`
	ZVSBefore       dab.ZVSStatus `json:"zvs_before"`
	ZVSAfter        dab.ZVSStatus `json:"zvs_after,omitempty"`
}

// Impact reports how a relative perturbation of each listed parameter
// moves efficiency and junction temperature from the base point.
func (e *Engine) Impact(base dab.OperatingPoint, params []string, fraction float64) ([]ImpactRow, error) {
	ref, err := e.Simulate(base)
	if err != nil {
		return nil, err
	}

	rows := make([]ImpactRow, 0, len(params))
	for _, name := range params {
		current, ok := base.Param(name)
		if !ok {
			return nil, &dab.InvalidParameterError{Param: name, Value: 0, Reason: "unknown impact parameter"}
		}

		next := current * (1 + fraction)
		row := ImpactRow{Param: name, NewValue: next, ZVSBefore: ref.ZVSStatus}
		cand, _ := base.WithParam(name, next)
		res, err := e.Simulate(cand)
		if err == nil {
			row.Valid = true
			row.EfficiencyDelta = res.Efficiency - ref.Efficiency
			row.TempDelta = res.JunctionTemp - ref.JunctionTemp
			row.ZVSAfter = res.ZVSStatus
		}
		rows = append(rows, row)
	}
	return rows, nil
}
