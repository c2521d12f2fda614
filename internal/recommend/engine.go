// Package recommend searches the simulation model around the current
// operating point for parameter changes that improve the objective a
// triggering alert names, ranking candidates by predicted impact.
package recommend

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

type Config struct {
	PhaseStep     float64 `yaml:"phase_step" json:"phase_step"`
	DutyStep      float64 `yaml:"duty_step" json:"duty_step"`
	FreqStep      float64 `yaml:"freq_step" json:"freq_step"`
	TuneFrequency bool    `yaml:"tune_frequency" json:"tune_frequency"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
	MinImpact     float64 `yaml:"min_impact" json:"min_impact"`
	MaxResults    int     `yaml:"max_results" json:"max_results"`
}

func DefaultConfig() Config {
	return Config{
		PhaseStep:     0.02,
		DutyStep:      0.05,
		FreqStep:      5000,
		TuneFrequency: false,
		MaxIterations: 5,
		MinImpact:     0.5,
		MaxResults:    3,
	}
}

func (c Config) validate() error {
	switch {
	case c.PhaseStep <= 0:
		return &dab.ConfigError{Section: "recommend", Reason: "phase_step must be positive"}
	case c.DutyStep <= 0:
		return &dab.ConfigError{Section: "recommend", Reason: "duty_step must be positive"}
	case c.FreqStep <= 0:
		return &dab.ConfigError{Section: "recommend", Reason: "freq_step must be positive"}
	case c.MaxIterations < 1:
		return &dab.ConfigError{Section: "recommend", Reason: "max_iterations must be at least 1"}
	case c.MinImpact < 0:
		return &dab.ConfigError{Section: "recommend", Reason: "min_impact must not be negative"}
	case c.MaxResults < 1:
		return &dab.ConfigError{Section: "recommend", Reason: "max_results must be at least 1"}
	}
	return nil
}

type Engine struct {
	cfg   Config
	sim   *sim.Engine
	newID func() string
	now   func() time.Time
}

func New(cfg Config, simEngine *sim.Engine) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if simEngine == nil {
		return nil, &dab.ConfigError{Section: "recommend", Reason: "simulation engine required"}
	}
	return &Engine{
		cfg:   cfg,
		sim:   simEngine,
		newID: uuid.NewString,
		now:   time.Now,
	}, nil
}

// ForAlert derives the search objective from the triggering alert and
// recommends parameter changes for the converter's current point.
func (e *Engine) ForAlert(alert *dab.Alert, op dab.OperatingPoint) ([]dab.Recommendation, error) {
	return e.recommend(alert.ConverterID, alert.ID, objectiveFor(alert), op)
}

// PeriodicReview runs the efficiency objective without a triggering alert.
func (e *Engine) PeriodicReview(converterID string, op dab.OperatingPoint) ([]dab.Recommendation, error) {
	return e.recommend(converterID, "", dab.ObjectiveEfficiency, op)
}

func objectiveFor(alert *dab.Alert) dab.Objective {
	switch alert.Kind {
	case dab.KindZVSLoss:
		return dab.ObjectiveZVS
	case dab.KindThreshold, dab.KindAnomaly:
		if alert.Quantity == dab.QuantityTemperature {
			return dab.ObjectiveTemperature
		}
	}
	return dab.ObjectiveEfficiency
}

type step struct {
	param string
	size  float64
}

func (e *Engine) tunables() []step {
	steps := []step{
		{dab.ParamPhaseShift, e.cfg.PhaseStep},
		{dab.ParamDelta1, e.cfg.DutyStep},
		{dab.ParamDelta2, e.cfg.DutyStep},
	}
	if e.cfg.TuneFrequency {
		steps = append(steps, step{dab.ParamSwitchingFreq, e.cfg.FreqStep})
	}
	return steps
}

type candidate struct {
	point  dab.OperatingPoint
	result dab.SimulationResult
	score  float64
}

func (e *Engine) recommend(converterID, alertID string, obj dab.Objective, op dab.OperatingPoint) ([]dab.Recommendation, error) {
	base, err := e.sim.Simulate(op)
	if err != nil {
		return nil, err
	}
	baseScore := objectiveScore(obj, base)

	var cands []candidate
	seen := map[dab.OperatingPoint]bool{op: true}
	add := func(c candidate) {
		if seen[c.point] {
			return
		}
		seen[c.point] = true
		cands = append(cands, c)
	}

	// Independent single-parameter perturbations in both directions.
	for _, tn := range e.tunables() {
		for _, dir := range []float64{1, -1} {
			if c, ok := e.probe(obj, op, tn.param, dir*tn.size); ok {
				add(c)
			}
		}
	}

	// Bounded steepest-ascent descent over the same step grid.
	if c, ok := e.descend(obj, op, base, baseScore); ok {
		add(c)
	}

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		impact := c.score - baseScore
		if impact <= 0 || impact < e.cfg.MinImpact {
			continue
		}
		if obj == dab.ObjectiveEfficiency && c.result.Efficiency < base.Efficiency {
			continue
		}
		if obj == dab.ObjectiveZVS && c.result.ZVSStatus.Rank() < base.ZVSStatus.Rank() {
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > e.cfg.MaxResults {
		kept = kept[:e.cfg.MaxResults]
	}

	recs := make([]dab.Recommendation, 0, len(kept))
	for i, c := range kept {
		recs = append(recs, dab.Recommendation{
			ID:                 e.newID(),
			ConverterID:        converterID,
			AlertID:            alertID,
			Objective:          obj,
			Changes:            e.diffChanges(op, c.point),
			Predicted:          c.result,
			BaselineEfficiency: base.Efficiency,
			ImpactScore:        c.score - baseScore,
			Confidence:         e.confidence(obj, c.point, baseScore),
			Status:             dab.RecProposed,
			Rank:               i + 1,
			CreatedAt:          e.now().UTC(),
		})
	}
	return recs, nil
}

// probe evaluates a single perturbed point. Out-of-range or otherwise
// invalid candidates are discarded, never surfaced as errors.
func (e *Engine) probe(obj dab.Objective, op dab.OperatingPoint, param string, delta float64) (candidate, bool) {
	current, _ := op.Param(param)
	cand, _ := op.WithParam(param, current+delta)
	if err := cand.Validate(); err != nil {
		return candidate{}, false
	}

	res, err := e.sim.Simulate(cand)
	if err != nil {
		return candidate{}, false
	}
	return candidate{point: cand, result: res, score: objectiveScore(obj, res)}, true
}

func (e *Engine) descend(obj dab.Objective, op dab.OperatingPoint, base dab.SimulationResult, baseScore float64) (candidate, bool) {
	cur := candidate{point: op, result: base, score: baseScore}
	moved := false

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		best := cur
		improved := false
		for _, tn := range e.tunables() {
			for _, dir := range []float64{1, -1} {
				if c, ok := e.probe(obj, cur.point, tn.param, dir*tn.size); ok && c.score > best.score+1e-12 {
					best = c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
		cur = best
		moved = true
	}

	if !moved {
		return candidate{}, false
	}
	return cur, true
}

// confidence is the fraction of the candidate's grid neighbours that
// also improve on the baseline; an isolated spike scores low.
func (e *Engine) confidence(obj dab.Objective, point dab.OperatingPoint, baseScore float64) float64 {
	total, improving := 0, 0
	for _, tn := range e.tunables() {
		for _, dir := range []float64{1, -1} {
			total++
			if c, ok := e.probe(obj, point, tn.param, dir*tn.size); ok && c.score > baseScore {
				improving++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(improving) / float64(total)
}

func (e *Engine) diffChanges(from, to dab.OperatingPoint) []dab.ParameterChange {
	var out []dab.ParameterChange
	for _, tn := range e.tunables() {
		f, _ := from.Param(tn.param)
		t, _ := to.Param(tn.param)
		if f != t {
			out = append(out, dab.ParameterChange{Name: tn.param, From: f, To: t, Delta: t - f})
		}
	}
	return out
}

// objectiveScore maps a simulated outcome onto the objective's scale:
// efficiency in percentage points, temperature as negated junction
// degrees, ZVS as class rank with an efficiency tiebreak.
func objectiveScore(obj dab.Objective, res dab.SimulationResult) float64 {
	switch obj {
	case dab.ObjectiveTemperature:
		return -res.JunctionTemp
	case dab.ObjectiveZVS:
		return 50*float64(res.ZVSStatus.Rank()) + res.Efficiency
	}
	return res.Efficiency * 100
}
