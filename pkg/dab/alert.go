package dab

import "time"

type AlertKind string

const (
	KindThreshold         AlertKind = "threshold"
	KindTrend             AlertKind = "trend"
	KindAnomaly           AlertKind = "anomaly"
	KindHealthDegradation AlertKind = "health_degradation"
	KindZVSLoss           AlertKind = "zvs_loss"
)

type AlertState string

const (
	StateActive       AlertState = "active"
	StateAcknowledged AlertState = "acknowledged"
	StateResolved     AlertState = "resolved"
)

// AlertKey identifies the single non-resolved alert slot a condition
// can occupy per converter.
type AlertKey struct {
	Kind     AlertKind `json:"kind"`
	Quantity string    `json:"quantity"`
}

type Alert struct {
	ID             string     `json:"id"`
	ConverterID    string     `json:"converter_id"`
	Kind           AlertKind  `json:"kind"`
	Quantity       string     `json:"quantity"`
	Severity       Severity   `json:"severity"`
	State          AlertState `json:"state"`
	Message        string     `json:"message"`
	Value          float64    `json:"value"`
	Threshold      float64    `json:"threshold"`
	RaisedAt       time.Time  `json:"raised_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	LastNotifiedAt time.Time  `json:"last_notified_at"`
	CooldownUntil  time.Time  `json:"cooldown_until"`
}

func (a *Alert) Key() AlertKey {
	return AlertKey{Kind: a.Kind, Quantity: a.Quantity}
}

// Notification is handed to transports on raise and on cooldown re-arm.
type Notification struct {
	Alert   Alert             `json:"alert"`
	Text    string            `json:"text"`
	Context map[string]string `json:"context"`
}

const ActionAcknowledge = "acknowledge"

// ControlCommand is the envelope published on the control subject; alert
// state changes flow through it so only the monitor mutates alert state.
type ControlCommand struct {
	Action  string `json:"action"`
	AlertID string `json:"alert_id"`
	Actor   string `json:"actor,omitempty"`
}
