package model

import "time"

// ConditionOp is the comparison operator of an alert rule.
type ConditionOp string

const (
	OpGT  ConditionOp = "gt"
	OpLT  ConditionOp = "lt"
	OpEQ  ConditionOp = "eq"
	OpNE  ConditionOp = "ne"
	OpGTE ConditionOp = "gte"
	OpLTE ConditionOp = "lte"
)

// Valid reports whether op is a known operator.
func (op ConditionOp) Valid() bool {
	switch op {
	case OpGT, OpLT, OpEQ, OpNE, OpGTE, OpLTE:
		return true
	}
	return false
}

// Eval applies the operator to value against threshold.
func (op ConditionOp) Eval(value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	}
	return false
}

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an alert instance.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertRule is a threshold check evaluated on a fixed interval.
// Rules are created and edited externally; the alert service reads
// enabled rules at startup and on reload.
type AlertRule struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	Metric        string      `json:"metric"`
	Condition     ConditionOp `json:"condition"`
	Threshold     float64     `json:"threshold"`
	WindowMinutes int         `json:"window_minutes"`
	Severity      Severity    `json:"severity"`
	Enabled       bool        `json:"enabled"`
	Channels      []string    `json:"channels,omitempty"` // email, webhook, slack
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// AlertInstance is an alert-history entry. While its status is active or
// acknowledged it occupies the in-memory active index, which admits at
// most one instance per (rule, metric) pair.
type AlertInstance struct {
	ID             string      `json:"id"`
	RuleID         int64       `json:"rule_id,omitempty"` // zero for event-triggered alerts
	RuleName       string      `json:"rule_name"`
	Metric         string      `json:"metric"`
	Value          float64     `json:"value"`
	Threshold      float64     `json:"threshold"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	Message        string      `json:"message,omitempty"`
	TriggeredAt    time.Time   `json:"triggered_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// AlertStats summarizes alert history over a lookback window.
type AlertStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
}
