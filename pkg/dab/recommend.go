package dab

import "time"

type Objective string

const (
	ObjectiveEfficiency  Objective = "efficiency"
	ObjectiveTemperature Objective = "temperature"
	ObjectiveZVS         Objective = "zvs"
)

type RecommendationStatus string

const (
	RecProposed    RecommendationStatus = "proposed"
	RecImplemented RecommendationStatus = "implemented"
	RecDismissed   RecommendationStatus = "dismissed"
	RecExpired     RecommendationStatus = "expired"
)

// CanTransition reports whether the status change is allowed; only
// proposed recommendations may move, and only to a terminal status.
func (s RecommendationStatus) CanTransition(to RecommendationStatus) bool {
	if s != RecProposed {
		return false
	}
	switch to {
	case RecImplemented, RecDismissed, RecExpired:
		return true
	}
	return false
}

type ParameterChange struct {
	Name  string  `json:"name"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Delta float64 `json:"delta"`
}

type Recommendation struct {
	ID                 string               `json:"id"`
	ConverterID        string               `json:"converter_id"`
	AlertID            string               `json:"alert_id,omitempty"`
	Objective          Objective            `json:"objective"`
	Changes            []ParameterChange    `json:"parameter_changes"`
	Predicted          SimulationResult     `json:"predicted"`
	BaselineEfficiency float64              `json:"baseline_efficiency"`
	ImpactScore        float64              `json:"impact_score"`
	Confidence         float64              `json:"confidence"`
	Status             RecommendationStatus `json:"status"`
	Rank               int                  `json:"rank"`
	CreatedAt          time.Time            `json:"created_at"`
}
