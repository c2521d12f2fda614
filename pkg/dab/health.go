package dab

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Rank orders severities for escalate-only comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityEmergency:
		return 3
	}
	return -1
}

type AnomalyKind string

const (
	AnomalySpike AnomalyKind = "spike"
	AnomalyDrop  AnomalyKind = "drop"
	AnomalyShift AnomalyKind = "level_shift"
)

type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	Quantity   string      `json:"quantity"`
	Value      float64     `json:"value"`
	ZScore     float64     `json:"z_score"`
	Confidence float64     `json:"confidence"`
	Severity   Severity    `json:"severity"`
}

type ScoreComponents struct {
	Efficiency float64 `json:"efficiency"`
	Thermal    float64 `json:"thermal"`
	ZVS        float64 `json:"zvs"`
	LossTrend  float64 `json:"loss_trend"`
}

type HealthRecord struct {
	ConverterID string          `json:"converter_id"`
	TsUnixNs    int64           `json:"ts_unix_ns"`
	HealthScore float64         `json:"health_score"`
	Components  ScoreComponents `json:"components"`
	Anomalies   []Anomaly       `json:"anomalies,omitempty"`
	Trend       TrendDirection  `json:"trend"`
	Sample      Sample          `json:"sample"`
	WindowSize  int             `json:"window_size"`
}
